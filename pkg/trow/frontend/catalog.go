package frontend

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"
	imgspec "github.com/opencontainers/image-spec/specs-go"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/wuxler/ruasec/pkg/trow/manifest"
)

const defaultPageSize = 100

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) handleListRepositories(c *gin.Context) {
	limit := pageLimit(c)
	repos, err := s.Registry.ListRepositories(ctx(c), c.Query("last"), limit)
	if err != nil {
		writeServerError(c, err)
		return
	}
	if repos == nil {
		repos = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}

func (s *Server) handleListTags(c *gin.Context, name string) {
	limit := pageLimit(c)
	tags, err := s.Registry.ListTags(ctx(c), name, c.Query("last"), limit)
	if err != nil {
		writeServerError(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "tags": tags})
}

func (s *Server) handleReferrers(c *gin.Context, name, dgstStr string) {
	target, err := digest.Parse(dgstStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid digest")
		return
	}

	referrers, err := s.Registry.Referrers(ctx(c), name, target, c.Query("artifactType"))
	if err != nil {
		writeServerError(c, err)
		return
	}

	index := imgspecv1.Index{
		Versioned: imgspec.Versioned{SchemaVersion: 2},
		MediaType: manifest.MediaTypeOCIImageIndex,
		Manifests: make([]imgspecv1.Descriptor, 0, len(referrers)),
	}
	for _, r := range referrers {
		parsed, err := manifest.Parse("", []byte(r.JSON))
		if err != nil {
			continue
		}
		index.Manifests = append(index.Manifests, imgspecv1.Descriptor{
			MediaType:    parsed.MediaType(),
			Digest:       digest.Digest(r.Digest),
			Size:         r.Size,
			ArtifactType: parsed.ArtifactType(),
			Annotations:  parsed.Annotations(),
		})
	}

	c.Header("Content-Type", manifest.MediaTypeOCIImageIndex)
	c.JSON(http.StatusOK, index)
}

func pageLimit(c *gin.Context) int {
	n := c.Query("n")
	if n == "" {
		return defaultPageSize
	}
	v, err := strconv.Atoi(n)
	if err != nil || v <= 0 {
		return defaultPageSize
	}
	return v
}

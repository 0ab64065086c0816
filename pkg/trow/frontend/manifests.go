package frontend

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/manifest"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
)

// maxManifestSize bounds how much of a PUT manifest body is read into memory;
// manifests are small JSON documents, unlike blobs, so reading the full body
// (rather than chunk-hashing as blobs do) is acceptable up to this limit.
const maxManifestSize = 4 << 20 // 4 MiB

func (s *Server) handleGetManifest(c *gin.Context, name, reference string) {
	s.metrics.manifestGets.Add(1)
	if _, _, ok := proxy.SplitProxiedRepo(name); ok {
		s.metrics.proxyFetches.Add(1)
	}
	m, err := s.Registry.GetManifest(ctx(c), name, reference)
	if err != nil {
		writeManifestError(c, err)
		return
	}
	c.Header("Docker-Content-Digest", m.Digest.String())
	c.Data(http.StatusOK, m.MediaType, m.Raw)
}

func (s *Server) handleHeadManifest(c *gin.Context, name, reference string) {
	m, err := s.Registry.GetManifest(ctx(c), name, reference)
	if err != nil {
		writeManifestError(c, err)
		return
	}
	c.Header("Docker-Content-Digest", m.Digest.String())
	c.Header("Content-Type", m.MediaType)
	c.Header("Content-Length", strconv.Itoa(len(m.Raw)))
	c.Status(http.StatusOK)
}

func (s *Server) handlePutManifest(c *gin.Context, name, reference string) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxManifestSize+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, codeManifestInvalid, "failed to read request body")
		return
	}
	if len(raw) > maxManifestSize {
		writeError(c, http.StatusBadRequest, codeManifestInvalid, "manifest exceeds maximum accepted size")
		return
	}

	dgst, err := s.Registry.PutManifest(ctx(c), name, reference, c.ContentType(), raw)
	if err != nil {
		writeManifestError(c, err)
		return
	}
	s.metrics.manifestPuts.Add(1)

	if parsed, err := manifest.Parse(c.ContentType(), raw); err == nil {
		if subject := parsed.Subject(); subject != nil {
			c.Header("OCI-Subject", subject.Digest.String())
		}
	}

	c.Header("Docker-Content-Digest", dgst.String())
	c.Header("Location", "/v2/"+name+"/manifests/"+dgst.String())
	c.Status(http.StatusCreated)
}

func (s *Server) handleDeleteManifest(c *gin.Context, name, reference string) {
	dgst, err := digest.Parse(reference)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeManifestInvalid, "manifest deletion requires a digest reference")
		return
	}
	if err := s.Registry.DeleteManifest(ctx(c), dgst); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		writeManifestError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func writeManifestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		writeError(c, http.StatusNotFound, codeManifestUnknown, err.Error())
	case errors.Is(err, errdefs.ErrInvalidParameter):
		writeError(c, http.StatusBadRequest, codeManifestInvalid, err.Error())
	case errors.Is(err, errdefs.ErrUnsupported):
		writeError(c, http.StatusBadRequest, codeUnsupported, err.Error())
	case errors.Is(err, errdefs.ErrForbidden), errors.Is(err, errdefs.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, codeUnauthorized, err.Error())
	default:
		writeServerError(c, err)
	}
}

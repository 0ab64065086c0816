package frontend

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
	"github.com/wuxler/ruasec/pkg/trow/registryname"
)

func (s *Server) handleValidateImage(c *gin.Context) {
	review, ok := s.decodeAdmissionReview(c)
	if !ok {
		return
	}

	resp := admission.Validate(*review.Request, s.admissionPolicy())
	resp.UID = review.Request.UID
	c.JSON(http.StatusOK, admission.AdmissionReview{
		APIVersion: review.APIVersion,
		Kind:       review.Kind,
		Response:   &resp,
	})
}

func (s *Server) handleMutateImage(c *gin.Context) {
	review, ok := s.decodeAdmissionReview(c)
	if !ok {
		return
	}

	resp, err := admission.Mutate(*review.Request, s.admissionPolicy(), s.rewriteProxiedImage)
	if err != nil {
		writeServerError(c, err)
		return
	}
	resp.UID = review.Request.UID
	c.JSON(http.StatusOK, admission.AdmissionReview{
		APIVersion: review.APIVersion,
		Kind:       review.Kind,
		Response:   &resp,
	})
}

func (s *Server) decodeAdmissionReview(c *gin.Context) (admission.AdmissionReview, bool) {
	var review admission.AdmissionReview
	if err := json.NewDecoder(c.Request.Body).Decode(&review); err != nil || review.Request == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed AdmissionReview body"})
		return admission.AdmissionReview{}, false
	}
	return review, true
}

// rewriteProxiedImage rewrites an image reference whose host matches a
// configured proxy alias's upstream host to its local "f/<alias>/..." form,
// so a mutated Pod pulls through the registry's cache instead of directly
// from the upstream it names.
func (s *Server) rewriteProxiedImage(image string) (string, bool) {
	ref, err := registryname.Parse(image)
	if err != nil {
		return "", false
	}
	for _, alias := range s.Registry.Proxy.Aliases {
		if alias.Host != ref.Host {
			continue
		}
		local := registryname.Reference{
			Host:       s.Host,
			Repository: proxy.RepoPrefix + alias.Alias + "/" + ref.Repository,
			Tag:        ref.Tag,
			Digest:     ref.Digest,
		}
		return local.Canonical(), true
	}
	return "", false
}

package frontend

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wuxler/ruasec/pkg/trow/registryname"
)

// Repository names may contain 1-7 slash-separated segments, which rules out
// gin's single-segment ":name" params; the distribution surface is instead
// dispatched off a trailing "*rest" wildcard split by these suffix patterns,
// tried in order (most specific first), mirroring how the teacher's own
// routeBuilder validates path segments with a single regexp rather than a
// router that understands variable-depth names.
var (
	manifestPattern    = regexp.MustCompile(`^(.+)/manifests/([^/]+)$`)
	uploadRefPattern   = regexp.MustCompile(`^(.+)/blobs/uploads/([^/]+)$`)
	uploadStartPattern = regexp.MustCompile(`^(.+)/blobs/uploads/?$`)
	blobPattern        = regexp.MustCompile(`^(.+)/blobs/([^/]+)$`)
	tagsPattern        = regexp.MustCompile(`^(.+)/tags/list$`)
	referrersPattern   = regexp.MustCompile(`^(.+)/referrers/([^/]+)$`)
)

// validName rejects a repository path that doesn't match the distribution
// name grammar before it reaches any registry.Registry operation.
func validName(c *gin.Context, name string) bool {
	if registryname.ValidRepository(name) {
		return true
	}
	writeError(c, http.StatusBadRequest, codeNameInvalid, "invalid repository name")
	return false
}

func (s *Server) routeRest(c *gin.Context) {
	rest := strings.TrimPrefix(c.Param("rest"), "/")
	method := c.Request.Method

	if rest == "" {
		if method == http.MethodGet {
			s.handlePing(c)
			return
		}
		writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	if rest == "_catalog" {
		if method == http.MethodGet {
			s.handleListRepositories(c)
			return
		}
		writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	if m := uploadRefPattern.FindStringSubmatch(rest); m != nil {
		name, session := m[1], m[2]
		if !validName(c, name) {
			return
		}
		switch method {
		case http.MethodPatch:
			s.handleUploadChunk(c, name, session)
		case http.MethodPut:
			s.handleCompleteUpload(c, name, session)
		case http.MethodGet:
			s.handleUploadStatus(c, name, session)
		case http.MethodDelete:
			s.handleCancelUpload(c, name, session)
		default:
			writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		}
		return
	}

	if m := uploadStartPattern.FindStringSubmatch(rest); m != nil {
		name := m[1]
		if !validName(c, name) {
			return
		}
		if method == http.MethodPost {
			s.handleStartUpload(c, name)
			return
		}
		writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	if m := manifestPattern.FindStringSubmatch(rest); m != nil {
		name, reference := m[1], m[2]
		if !validName(c, name) {
			return
		}
		switch method {
		case http.MethodGet:
			s.handleGetManifest(c, name, reference)
		case http.MethodHead:
			s.handleHeadManifest(c, name, reference)
		case http.MethodPut:
			s.handlePutManifest(c, name, reference)
		case http.MethodDelete:
			s.handleDeleteManifest(c, name, reference)
		default:
			writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		}
		return
	}

	if m := tagsPattern.FindStringSubmatch(rest); m != nil {
		if !validName(c, m[1]) {
			return
		}
		if method == http.MethodGet {
			s.handleListTags(c, m[1])
			return
		}
		writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	if m := referrersPattern.FindStringSubmatch(rest); m != nil {
		if !validName(c, m[1]) {
			return
		}
		if method == http.MethodGet {
			s.handleReferrers(c, m[1], m[2])
			return
		}
		writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	if m := blobPattern.FindStringSubmatch(rest); m != nil {
		name, dgst := m[1], m[2]
		if !validName(c, name) {
			return
		}
		switch method {
		case http.MethodGet:
			s.handleGetBlob(c, name, dgst)
		case http.MethodHead:
			s.handleHeadBlob(c, name, dgst)
		case http.MethodDelete:
			s.handleDeleteBlob(c, name, dgst)
		default:
			writeError(c, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		}
		return
	}

	writeError(c, http.StatusNotFound, codeNotFound, "unrecognized path")
}

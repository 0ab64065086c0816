package frontend

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ociError is one element of the OCI Distribution error envelope.
type ociError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

type errorEnvelope struct {
	Errors []ociError `json:"errors"`
}

// OCI error codes recognized by the distribution protocol, per the error
// envelope's closed code taxonomy.
const (
	codeBlobUnknown        = "BLOB_UNKNOWN"
	codeBlobUploadUnknown  = "BLOB_UPLOAD_UNKNOWN"
	codeBlobUploadInvalid  = "BLOB_UPLOAD_INVALID"
	codeDigestInvalid      = "DIGEST_INVALID"
	codeManifestInvalid    = "MANIFEST_INVALID"
	codeManifestUnknown    = "MANIFEST_UNKNOWN"
	codeNameInvalid        = "NAME_INVALID"
	codeUnsupported        = "UNSUPPORTED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeNotFound           = "NOT_FOUND"
	codeInternalError      = "INTERNAL_ERROR"
	codeUnsatisfiableRange = "UNSATISFIABLE_RANGE"
)

// writeError aborts the request with the OCI error envelope, setting the
// distribution API version header every response (success or error) carries.
func writeError(c *gin.Context, status int, code, message string) {
	c.Header("Docker-Distribution-API-Version", "registry/2.0")
	c.AbortWithStatusJSON(status, errorEnvelope{Errors: []ociError{{Code: code, Message: message}}})
}

// writeServerError reports an unclassified internal error, never leaking err's
// text to the client beyond a generic message; the detail is for server logs.
func writeServerError(c *gin.Context, err error) {
	logger(c).Errorf("internal error: %v", err)
	writeError(c, http.StatusInternalServerError, codeInternalError, "internal server error")
}

package frontend

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

func (s *Server) handleGetBlob(c *gin.Context, name, dgstStr string) {
	s.metrics.blobGets.Add(1)
	dgst, err := digest.Parse(dgstStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid digest")
		return
	}

	if offset, ok := parseRangeOffset(c.GetHeader("Range")); ok {
		blob, err := s.Registry.GetBlobRange(ctx(c), name, dgst, offset)
		if err != nil {
			if errors.Is(err, errdefs.ErrInvalidParameter) {
				writeError(c, http.StatusRequestedRangeNotSatisfiable, codeUnsatisfiableRange, err.Error())
				return
			}
			writeBlobError(c, err)
			return
		}
		defer blob.Body.Close()

		c.Header("Docker-Content-Digest", blob.Digest.String())
		c.Header("Content-Range", "bytes "+strconv.FormatInt(offset, 10)+"-"+strconv.FormatInt(offset+blob.Size-1, 10))
		c.Header("Content-Length", strconv.FormatInt(blob.Size, 10))
		c.Status(http.StatusPartialContent)
		n, _ := io.Copy(c.Writer, blob.Body)
		s.metrics.blobBytesSent.Add(n)
		return
	}

	blob, err := s.Registry.GetBlob(ctx(c), name, dgst)
	if err != nil {
		writeBlobError(c, err)
		return
	}
	defer blob.Body.Close()

	c.Header("Docker-Content-Digest", blob.Digest.String())
	c.Header("Content-Length", strconv.FormatInt(blob.Size, 10))
	c.Status(http.StatusOK)
	n, _ := io.Copy(c.Writer, blob.Body)
	s.metrics.blobBytesSent.Add(n)
}

// parseRangeOffset extracts the start offset from a single-range "bytes=N-"
// Range header, the only form blob downloads need to support resumable pulls.
func parseRangeOffset(header string) (int64, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	start, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return 0, false
	}
	return offset, true
}

func (s *Server) handleHeadBlob(c *gin.Context, name, dgstStr string) {
	dgst, err := digest.Parse(dgstStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid digest")
		return
	}
	size, err := s.Registry.StatBlob(ctx(c), name, dgst)
	if err != nil {
		writeBlobError(c, err)
		return
	}
	c.Header("Docker-Content-Digest", dgst.String())
	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Status(http.StatusOK)
}

func (s *Server) handleDeleteBlob(c *gin.Context, name, dgstStr string) {
	dgst, err := digest.Parse(dgstStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid digest")
		return
	}
	if err := s.Registry.DeleteBlob(ctx(c), dgst); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		writeBlobError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func writeBlobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		writeError(c, http.StatusNotFound, codeBlobUnknown, err.Error())
	case errors.Is(err, errdefs.ErrInvalidParameter):
		writeError(c, http.StatusBadRequest, codeDigestInvalid, err.Error())
	default:
		writeServerError(c, err)
	}
}

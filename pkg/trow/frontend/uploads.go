package frontend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

func (s *Server) handleStartUpload(c *gin.Context, name string) {
	if digestStr := c.Query("digest"); digestStr != "" {
		s.handleMonolithicUpload(c, name, digestStr)
		return
	}
	if mountDigest := c.Query("mount"); mountDigest != "" {
		if s.handleMountBlob(c, name, mountDigest, c.Query("from")) {
			return
		}
	}

	sessionID, err := s.Registry.Upload.Start(ctx(c), name)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	s.metrics.uploadsStarted.Add(1)
	c.Header("Location", "/v2/"+name+"/blobs/uploads/"+sessionID)
	c.Header("Docker-Upload-UUID", sessionID)
	c.Header("Range", "0-0")
	c.Status(http.StatusAccepted)
}

func (s *Server) handleMonolithicUpload(c *gin.Context, name, digestStr string) {
	expected, err := digest.Parse(digestStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid digest")
		return
	}
	if err := s.Registry.PutBlob(ctx(c), name, expected, c.Request.ContentLength, c.Request.Body); err != nil {
		writeUploadError(c, err)
		return
	}
	s.metrics.blobPuts.Add(1)
	c.Header("Docker-Content-Digest", expected.String())
	c.Header("Location", "/v2/"+name+"/blobs/"+expected.String())
	c.Status(http.StatusCreated)
}

// handleMountBlob attempts an OCI cross-repository blob mount, associating an
// already-stored blob from another repository with name without re-uploading
// it. Returns false (writing nothing) when the source blob isn't available,
// so the caller falls back to an ordinary upload session per the protocol's
// documented mount semantics.
func (s *Server) handleMountBlob(c *gin.Context, name, digestStr, from string) bool {
	dgst, err := digest.Parse(digestStr)
	if err != nil || from == "" {
		return false
	}
	associated, err := s.Registry.Index.BlobAssociated(ctx(c), from, dgst.String())
	if err != nil || !associated {
		return false
	}
	size, err := s.Registry.Storage.Size(ctx(c), dgst)
	if err != nil {
		return false
	}
	if err := s.Registry.Index.AssociateBlob(ctx(c), name, dgst.String(), size); err != nil {
		writeUploadError(c, err)
		return true
	}
	c.Header("Docker-Content-Digest", dgst.String())
	c.Header("Location", "/v2/"+name+"/blobs/"+dgst.String())
	c.Status(http.StatusCreated)
	return true
}

func (s *Server) handleUploadChunk(c *gin.Context, name, session string) {
	start, ok := parseContentRangeStart(c.GetHeader("Content-Range"))
	if !ok {
		offset, err := s.Registry.Upload.Status(ctx(c), name, session)
		if err != nil {
			writeUploadError(c, err)
			return
		}
		start = offset
	}

	newOffset, err := s.Registry.Upload.Append(ctx(c), name, session, start, c.Request.Body)
	if err != nil {
		if errors.Is(err, errdefs.ErrInvalidParameter) {
			writeError(c, http.StatusRequestedRangeNotSatisfiable, codeBlobUploadInvalid, err.Error())
			return
		}
		writeUploadError(c, err)
		return
	}

	c.Header("Location", "/v2/"+name+"/blobs/uploads/"+session)
	c.Header("Docker-Upload-UUID", session)
	c.Header("Range", "0-"+strconv.FormatInt(newOffset-1, 10))
	c.Status(http.StatusAccepted)
}

func (s *Server) handleCompleteUpload(c *gin.Context, name, session string) {
	digestStr := c.Query("digest")
	expected, err := digest.Parse(digestStr)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeDigestInvalid, "invalid or missing digest query parameter")
		return
	}

	if err := s.Registry.CompleteBlobUpload(ctx(c), name, session, expected, c.Request.Body); err != nil {
		writeUploadError(c, err)
		return
	}
	s.metrics.blobPuts.Add(1)

	c.Header("Docker-Content-Digest", expected.String())
	c.Header("Location", "/v2/"+name+"/blobs/"+expected.String())
	c.Status(http.StatusCreated)
}

func (s *Server) handleUploadStatus(c *gin.Context, name, session string) {
	offset, err := s.Registry.Upload.Status(ctx(c), name, session)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	c.Header("Range", "0-"+strconv.FormatInt(offset-1, 10))
	c.Header("Docker-Upload-UUID", session)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCancelUpload(c *gin.Context, name, session string) {
	if err := s.Registry.Upload.Cancel(ctx(c), name, session); err != nil {
		writeUploadError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseContentRangeStart parses a "<start>-<end>" Content-Range header value,
// the form the distribution protocol uses (no byte-unit prefix, unlike HTTP's
// own Content-Range). ok is false if the header is absent or malformed.
func parseContentRangeStart(header string) (int64, bool) {
	if header == "" {
		return 0, false
	}
	parts := strings.SplitN(header, "-", 2)
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

func writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errdefs.ErrNotFound), errors.Is(err, errdefs.ErrForbidden):
		writeError(c, http.StatusNotFound, codeBlobUploadUnknown, err.Error())
	case errors.Is(err, errdefs.ErrInvalidParameter):
		writeError(c, http.StatusBadRequest, codeDigestInvalid, err.Error())
	case errors.Is(err, errdefs.ErrUnsupported):
		writeError(c, http.StatusBadRequest, codeUnsupported, err.Error())
	default:
		writeServerError(c, err)
	}
}

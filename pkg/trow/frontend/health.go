package frontend

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealthz is a liveness probe: once the process is serving requests,
// it always reports healthy. Storage failures are a readiness concern, not
// a liveness one, so they're checked by handleReadiness instead.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadiness probes the storage backend for writability, returning 503
// rather than crashing the process on a read-only or full data directory.
func (s *Server) handleReadiness(c *gin.Context) {
	if err := s.Registry.Storage.Ready(ctx(c)); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.snapshot())
}

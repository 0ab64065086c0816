package frontend

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// metrics tallies request-level counters for the /metrics endpoint. No
// metrics client appears anywhere in the example pack, so this follows the
// same plain atomic-counter idiom as pkg/util/xio's rate counter rather than
// reaching for an unexercised dependency.
type metrics struct {
	manifestPuts   atomic.Int64
	manifestGets   atomic.Int64
	blobPuts       atomic.Int64
	blobGets       atomic.Int64
	blobBytesSent  atomic.Int64
	uploadsStarted atomic.Int64
	proxyFetches   atomic.Int64
}

func (m *metrics) snapshot() gin.H {
	return gin.H{
		"manifest_puts":   m.manifestPuts.Load(),
		"manifest_gets":   m.manifestGets.Load(),
		"blob_puts":       m.blobPuts.Load(),
		"blob_gets":       m.blobGets.Load(),
		"blob_bytes_sent": m.blobBytesSent.Load(),
		"uploads_started": m.uploadsStarted.Load(),
		"proxy_fetches":   m.proxyFetches.Load(),
	}
}

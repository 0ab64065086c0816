// Package frontend implements the OCI Distribution HTTP API and the
// Kubernetes admission webhook endpoints on top of pkg/trow/registry,
// generalizing the teacher's single-route gin stub (pkg/commands/server)
// into the full route table described by
// pkg/ocispec/distribution/routes.go's RouteDescriptor table.
package frontend

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/registry"
	"github.com/wuxler/ruasec/pkg/xlog"
)

// Server wires a registry.Registry to a gin.Engine implementing every
// endpoint in the distribution and admission surfaces.
type Server struct {
	Registry *registry.Registry
	// ServiceName is the configured service name. No handler reads it, and
	// no response carries a WWW-Authenticate challenge naming it.
	ServiceName string
	// Host is this registry's own advertised "host[:port]", substituted
	// into mutated image references so a rewritten Pod pulls from this
	// registry rather than from whatever host the original image named.
	Host string

	metrics metrics
}

// New returns a Server over reg, advertising host in mutated image references.
func New(reg *registry.Registry, serviceName, host string) *Server {
	return &Server{Registry: reg, ServiceName: serviceName, Host: host}
}

// Handler builds the gin.Engine exposing every distribution, admission, and
// operational endpoint.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apiVersionHeader)

	// "*rest" must be the only child registered under "/v2/": gin's radix
	// router panics if a catch-all wildcard has any static sibling path
	// segment, so ping ("") and catalog ("_catalog") are dispatched inside
	// routeRest instead of being registered as their own routes.
	v2 := router.Group("/v2")
	v2.HEAD("/*rest", s.routeRest)
	v2.GET("/*rest", s.routeRest)
	v2.PUT("/*rest", s.routeRest)
	v2.POST("/*rest", s.routeRest)
	v2.PATCH("/*rest", s.routeRest)
	v2.DELETE("/*rest", s.routeRest)

	router.POST("/validate-image", s.handleValidateImage)
	router.POST("/mutate-image", s.handleMutateImage)

	router.GET("/healthz", s.handleHealthz)
	router.GET("/readiness", s.handleReadiness)
	router.GET("/metrics", s.handleMetrics)

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, codeNotFound, "unrecognized path")
	})

	return router
}

func apiVersionHeader(c *gin.Context) {
	c.Header("Docker-Distribution-API-Version", "registry/2.0")
	c.Next()
}

func logger(c *gin.Context) *xlog.Logger {
	return xlog.FromContext(c.Request.Context())
}

func ctx(c *gin.Context) context.Context {
	return c.Request.Context()
}

// admissionPolicy exposes the configured policy to the admission handlers;
// defined here so admission.go doesn't need its own accessor.
func (s *Server) admissionPolicy() admission.Policy {
	return s.Registry.Policy
}

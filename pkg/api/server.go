package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pkgvault/registry/pkg/downloads"
	"github.com/pkgvault/registry/pkg/httputil"
	"github.com/pkgvault/registry/pkg/observability"
	"github.com/pkgvault/registry/pkg/registry"
)

// VersionFinder resolves package versions. Both the raw catalog and its
// cached wrapper satisfy this.
type VersionFinder interface {
	FindVersion(ctx context.Context, pkg, version string) (*registry.Version, error)
}

// Server wires the registry's HTTP routes to its services
type Server struct {
	catalog     *registry.Catalog
	finder      VersionFinder
	service     *downloads.Service
	coordinator *downloads.Coordinator
	resolver    registry.LocationResolver
	metrics     *observability.Metrics
	logger      *observability.Logger
	router      *mux.Router
}

// NewServer creates the API server. finder may be the cached catalog;
// metrics may be nil in tests.
func NewServer(
	catalog *registry.Catalog,
	finder VersionFinder,
	service *downloads.Service,
	coordinator *downloads.Coordinator,
	resolver registry.LocationResolver,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Server {
	s := &Server{
		catalog:     catalog,
		finder:      finder,
		service:     service,
		coordinator: coordinator,
		resolver:    resolver,
		metrics:     metrics,
		logger:      logger,
		router:      mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Catalog routes
	s.handle("/api/v1/packages", s.createPackage, "POST")
	s.handle("/api/v1/packages/{name}/versions", s.publishVersion, "POST")
	s.handle("/api/v1/packages/{name}/versions", s.listVersions, "GET")

	// Download routes
	s.handle("/api/v1/packages/{name}/{version}/download", s.download, "GET")
	s.handle("/api/v1/packages/{name}/{version}/downloads", s.versionDownloads, "GET")
	s.handle("/api/v1/packages/{name}/downloads", s.packageDownloads, "GET")

	// Admin routes
	s.handle("/api/v1/admin/flush", s.flush, "POST")
}

// handle registers a route, instrumented when metrics are enabled
func (s *Server) handle(path string, fn http.HandlerFunc, methods ...string) {
	var handler http.Handler = fn
	if s.metrics != nil {
		handler = s.metrics.InstrumentHandler(path, handler)
	}
	s.router.Handle(path, handler).Methods(methods...)
}

// Router returns the bare route tree, without middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the route tree wrapped in the standard middleware
// chain. Extra middleware (rate limiting) runs innermost.
func (s *Server) Handler(extra ...func(http.Handler) http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	chain = append(chain, extra...)
	return httputil.Chain(chain...)(s.router)
}

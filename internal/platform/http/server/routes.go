package server

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/api"
	"github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service"
	httpmw "github.com/MahdiBaghbani/confdesk-go/internal/platform/http/middleware"
)

// setupRoutes builds the root router. Middleware order is fixed:
// RequestID, request logger, access log, recoverer. The recoverer writes
// through the access log's response wrapper so panics are logged as 500.
func (s *Server) setupRoutes(services []service.Service) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger))
	r.Use(httpmw.AccessLogMiddleware(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", api.HealthHandler(s.sessionState))

	for _, svc := range services {
		s.mountService(r, svc)
	}
	return r
}

// mountService mounts svc under /<prefix> and tracks it for Shutdown.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.services = append(s.services, svc)
}

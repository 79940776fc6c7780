// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/config"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
)

// Server owns the HTTP listener and the services mounted on it.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger

	// services in mount order; closed in reverse order on shutdown.
	services []service.Service
	// sessionState feeds GET /health; nil reports "none".
	sessionState func() string
}

// New builds a server that mounts services in the given order.
func New(cfg *config.Config, logger *slog.Logger, services []service.Service, sessionState func() string) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if svc == nil {
			continue
		}
		p := svc.Prefix()
		if seen[p] {
			return nil, fmt.Errorf("duplicate service prefix %q", p)
		}
		seen[p] = true
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		sessionState: sessionState,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(services),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting server", "addr", l.Addr().String())
	return s.httpServer.Serve(l)
}

// Shutdown stops the listener and then closes every mounted service,
// last mounted first. Close errors are logged and joined.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	for i := len(s.services) - 1; i >= 0; i-- {
		svc := s.services[i]
		if cerr := svc.Close(); cerr != nil {
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", cerr)
			err = errors.Join(err, cerr)
			continue
		}
		s.logger.Debug("service closed", "service", svc.Prefix())
	}
	return err
}

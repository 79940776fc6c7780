package service

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
)

// Service is an HTTP service mounted under its prefix.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
}

// NewService builds a service from its raw config map and the shared deps.
type NewService func(conf map[string]any, d *deps.Deps, log *slog.Logger) (Service, error)

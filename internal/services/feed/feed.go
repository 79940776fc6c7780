// Package feed provides the bridge ingress under /feed: notification
// batches and connection state events.
package feed

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/api"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/reconciler"
	"github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/http/auth"
	feedcodec "github.com/MahdiBaghbani/confdesk-go/internal/session/feed"
)

func init() {
	service.MustRegister("feed", New)
}

// Config holds feed service configuration.
type Config struct {
	// MaxBodyBytes bounds one request body.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// Sync makes POST /batches wait until the batch is applied and report
	// the reconciler stats. Off, batches are queued and 202 is returned.
	Sync bool `mapstructure:"sync"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = feedcodec.MaxLineBytes
	}
}

// Service is the feed service.
type Service struct {
	router chi.Router
	conf   *Config
	sup    *desk.Supervisor
	log    *slog.Logger
}

// New creates the feed service. Requests must carry the session feed
// token as a bearer token when one is configured.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.Decode(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "feed", "unused_keys", unused)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s := &Service{conf: &c, sup: d.Supervisor, log: log}

	r := chi.NewRouter()
	r.Use(auth.NewTokenGate(auth.TokenGateConfig{Token: d.Config.Session.FeedToken, Log: log}))
	r.Post("/batches", s.handleBatch)
	r.Post("/connection", s.handleConnection)
	s.router = r

	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string { return "feed" }

// Close is a no-op.
func (s *Service) Close() error { return nil }

// BatchResponse is the body of a successful POST /batches.
type BatchResponse struct {
	Notifications int `json:"notifications"`
	// Stats is set only in sync mode.
	Stats *reconciler.Stats `json:"stats,omitempty"`
}

func (s *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	log := appctx.Logger(r.Context(), s.log)
	body := http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes)

	b, err := feedcodec.DecodeBatch(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, api.ReasonTooLarge, "batch too large")
			return
		}
		log.Warn("rejected batch", "error", err)
		api.WriteBadRequest(w, api.ReasonInvalidBatch, err.Error())
		return
	}

	resp := BatchResponse{Notifications: b.Len()}
	if !s.conf.Sync {
		if err := s.sup.Deliver(r.Context(), b); err != nil {
			s.writeDeliverError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusAccepted, resp)
		return
	}

	d, err := s.sup.Desk()
	if err != nil {
		log.Warn("batch dropped: no active session", "notifications", b.Len())
		api.WriteNoSession(w)
		return
	}
	st, err := d.Apply(r.Context(), b)
	if err != nil {
		s.writeDeliverError(w, r, err)
		return
	}
	resp.Stats = &st
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Service) writeDeliverError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, desk.ErrNoSession) {
		api.WriteNoSession(w)
		return
	}
	appctx.Logger(r.Context(), s.log).Warn("batch not delivered", "error", err)
	api.WriteError(w, http.StatusServiceUnavailable, api.ReasonNoSession, "batch not delivered")
}

func (s *Service) handleConnection(w http.ResponseWriter, r *http.Request) {
	ev, err := feedcodec.DecodeConnection(http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes))
	if err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, err.Error())
		return
	}
	s.sup.OnConnectionState(ev)
	api.WriteJSON(w, http.StatusOK, s.sup.State())
}

// Package desk provides the operator endpoints under /api.
package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/actions"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/api"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/desk"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/confdesk-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/eventlog"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/owner"
)

func init() {
	service.MustRegister("desk", New)
}

// Config holds desk service configuration.
type Config struct {
	// LogLimit is the default page size of GET /log.
	LogLimit int `mapstructure:"log_limit"`
	// MaxLogLimit caps the limit a client may ask for.
	MaxLogLimit int `mapstructure:"max_log_limit"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.LogLimit <= 0 {
		c.LogLimit = 200
	}
	if c.MaxLogLimit <= 0 {
		c.MaxLogLimit = 1000
	}
	if c.LogLimit > c.MaxLogLimit {
		c.LogLimit = c.MaxLogLimit
	}
}

// Service is the desk service.
type Service struct {
	router chi.Router
	conf   *Config
	sup    *desk.Supervisor
	events eventlog.Sink
	log    *slog.Logger
}

// New creates the desk service.
func New(m map[string]any, d *deps.Deps, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.Decode(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "desk", "unused_keys", unused)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s := &Service{conf: &c, sup: d.Supervisor, events: d.EventLog, log: log}

	r := chi.NewRouter()
	r.Get("/interactions", s.handleInteractions)
	r.Get("/eligibility", s.handleEligibility)
	r.Put("/selection/{id}", s.handleSelection(true))
	r.Delete("/selection/{id}", s.handleSelection(false))
	r.Put("/focus/{id}", s.handleFocus)
	r.Put("/dial-string", s.handleDialString)
	r.Post("/actions/{action}", s.handleAction)
	r.Get("/log", s.handleLog)
	s.router = r

	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string { return "api" }

// Close is a no-op; the supervisor is owned by main.
func (s *Service) Close() error { return nil }

// active returns the live desk or writes the error response itself.
func (s *Service) active(w http.ResponseWriter) (*desk.Desk, bool) {
	d, err := s.sup.Desk()
	if err != nil {
		api.WriteNoSession(w)
		return nil, false
	}
	return d, true
}

// writeDeskError maps errors from a desk call.
func (s *Service) writeDeskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, owner.ErrClosed), errors.Is(err, desk.ErrNoSession):
		// The session went down while the request was queued.
		api.WriteNoSession(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		appctx.Logger(r.Context(), s.log).Debug("request abandoned", "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, api.ReasonNoSession, "request abandoned")
	default:
		appctx.Logger(r.Context(), s.log).Error("desk call failed", "error", err)
		api.WriteInternalError(w, "desk call failed")
	}
}

func (s *Service) handleInteractions(w http.ResponseWriter, r *http.Request) {
	d, ok := s.active(w)
	if !ok {
		return
	}
	snap, err := d.Snapshot(r.Context())
	if err != nil {
		s.writeDeskError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, snap)
}

func (s *Service) handleEligibility(w http.ResponseWriter, r *http.Request) {
	d, ok := s.active(w)
	if !ok {
		return
	}
	e, err := d.Eligibility(r.Context())
	if err != nil {
		s.writeDeskError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, e)
}

func parseID(w http.ResponseWriter, r *http.Request) (interaction.ID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		api.WriteBadRequest(w, api.ReasonBadRequest, fmt.Sprintf("invalid interaction id %q", raw))
		return 0, false
	}
	return interaction.ID(n), true
}

func (s *Service) handleSelection(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		d, ok := s.active(w)
		if !ok {
			return
		}
		found, err := d.SetChecked(r.Context(), id, on)
		if err != nil {
			s.writeDeskError(w, r, err)
			return
		}
		if !found {
			api.WriteNotFound(w, fmt.Sprintf("interaction %d is not a host", id))
			return
		}
		s.writeSelection(w, r, d)
	}
}

func (s *Service) handleFocus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	d, ok := s.active(w)
	if !ok {
		return
	}
	found, err := d.Focus(r.Context(), id)
	if err != nil {
		s.writeDeskError(w, r, err)
		return
	}
	if !found {
		api.WriteNotFound(w, fmt.Sprintf("interaction %d is not a host", id))
		return
	}
	s.writeSelection(w, r, d)
}

// DialStringRequest is the body of PUT /dial-string.
type DialStringRequest struct {
	DialString string `json:"dial_string"`
}

func (s *Service) handleDialString(w http.ResponseWriter, r *http.Request) {
	var req DialStringRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid dial string body")
		return
	}
	d, ok := s.active(w)
	if !ok {
		return
	}
	if err := d.SetDialString(r.Context(), req.DialString); err != nil {
		s.writeDeskError(w, r, err)
		return
	}
	s.writeSelection(w, r, d)
}

// writeSelection answers a selection mutation with the resulting state.
func (s *Service) writeSelection(w http.ResponseWriter, r *http.Request, d *desk.Desk) {
	snap, err := d.Snapshot(r.Context())
	if err != nil {
		s.writeDeskError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, snap.Selection)
}

func (s *Service) handleAction(w http.ResponseWriter, r *http.Request) {
	a, err := selection.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, err.Error())
		return
	}
	d, ok := s.active(w)
	if !ok {
		return
	}
	res, err := d.Execute(r.Context(), a)
	switch {
	case errors.Is(err, actions.ErrNotEligible):
		api.WriteNotEligible(w, err.Error())
	case err != nil:
		s.writeDeskError(w, r, err)
	default:
		// The outcome arrives later as notifications.
		api.WriteJSON(w, http.StatusAccepted, res)
	}
}

// LogLine is an operator log entry with its rendered line.
type LogLine struct {
	eventlog.Entry
	Line string `json:"line"`
}

// LogResponse is the body of GET /log.
type LogResponse struct {
	Entries []LogLine `json:"entries"`
	// Next is the cursor for the following page.
	Next int64 `json:"next"`
}

func (s *Service) handleLog(w http.ResponseWriter, r *http.Request) {
	q := eventlog.Query{Limit: s.conf.LogLimit}
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid after cursor")
			return
		}
		q.AfterSeq = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid limit")
			return
		}
		q.Limit = min(n, s.conf.MaxLogLimit)
	}

	entries, err := s.events.List(r.Context(), q)
	if err != nil {
		appctx.Logger(r.Context(), s.log).Error("failed to read event log", "error", err)
		api.WriteInternalError(w, "failed to read event log")
		return
	}
	resp := LogResponse{Entries: make([]LogLine, 0, len(entries)), Next: q.AfterSeq}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, LogLine{Entry: e, Line: e.Line()})
		resp.Next = e.Seq
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

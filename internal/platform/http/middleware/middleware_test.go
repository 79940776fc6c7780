package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/appctx"
)

type logRecord struct {
	message string
	level   slog.Level
	attrs   map[string]any
}

// logRecorder captures records together with attrs attached via With.
type logRecorder struct {
	mu      *sync.Mutex
	records *[]logRecord
	attrs   []slog.Attr
}

func newLogRecorder() *logRecorder {
	return &logRecorder{mu: &sync.Mutex{}, records: new([]logRecord)}
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, logRecord{message: rec.Message, level: rec.Level, attrs: attrs})
	return nil
}

func (r *logRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logRecorder{mu: r.mu, records: r.records, attrs: append(append([]slog.Attr{}, r.attrs...), attrs...)}
}

func (r *logRecorder) WithGroup(string) slog.Handler { return r }

func (r *logRecorder) find(message string) *logRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range *r.records {
		if (*r.records)[i].message == message {
			rec := (*r.records)[i]
			return &rec
		}
	}
	return nil
}

func newRouter(logger *slog.Logger, withRequestLogger bool, h http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if withRequestLogger {
		r.Use(RequestLoggerMiddleware(logger))
	}
	r.Use(AccessLogMiddleware(logger))
	r.Use(chimw.Recoverer)
	r.HandleFunc("/*", h)
	return r
}

var accessFields = []string{"request_id", "method", "path", "client_ip", "status", "bytes", "duration_ms"}

func TestAccessLogMiddleware_Fields(t *testing.T) {
	for _, withRequestLogger := range []bool{true, false} {
		rec := newLogRecorder()
		r := newRouter(slog.New(rec), withRequestLogger, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("hello"))
		})

		req := httptest.NewRequest(http.MethodPost, "/api/actions/hold?x=1", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		r.ServeHTTP(httptest.NewRecorder(), req)

		access := rec.find("request")
		if access == nil {
			t.Fatalf("no access log (request logger = %v)", withRequestLogger)
		}
		for _, f := range accessFields {
			if _, ok := access.attrs[f]; !ok {
				t.Errorf("missing field %q (request logger = %v)", f, withRequestLogger)
			}
		}
		if access.attrs["path"] != "/api/actions/hold" {
			t.Errorf("path = %v, want no query string", access.attrs["path"])
		}
		if access.attrs["client_ip"] != "10.0.0.7" {
			t.Errorf("client_ip = %v", access.attrs["client_ip"])
		}
		if status, ok := access.attrs["status"].(int64); !ok || status != 200 {
			t.Errorf("status = %v", access.attrs["status"])
		}
		if access.level != slog.LevelInfo {
			t.Errorf("level = %v, want info", access.level)
		}
	}
}

func TestAccessLogMiddleware_PanicLogged500AtWarn(t *testing.T) {
	rec := newLogRecorder()
	r := newRouter(slog.New(rec), true, func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rr.Code)
	}
	access := rec.find("request")
	if access == nil {
		t.Fatal("no access log after panic")
	}
	if status, _ := access.attrs["status"].(int64); status != 500 {
		t.Errorf("status = %v, want 500", access.attrs["status"])
	}
	if access.level != slog.LevelWarn {
		t.Errorf("level = %v, want warn", access.level)
	}
}

func TestRequestLoggerMiddleware_InstallsContextLogger(t *testing.T) {
	rec := newLogRecorder()
	r := newRouter(slog.New(rec), true, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := appctx.LoggerFromContext(r.Context()); !ok {
			t.Error("no logger in request context")
		}
		appctx.Logger(r.Context(), nil).Info("handled")
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/y", nil))

	handled := rec.find("handled")
	if handled == nil {
		t.Fatal("handler log missing")
	}
	if id, _ := handled.attrs["request_id"].(string); id == "" {
		t.Error("handler log has no request_id")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[::1]:80", "::1"},
		{"socket", "socket"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

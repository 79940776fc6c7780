// Package middleware provides the always-on transport middleware.
package middleware

import (
	"log/slog"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/appctx"
)

// RequestLoggerMiddleware stores a logger carrying request_id, method,
// path and client_ip in the request context. It must run after
// chimw.RequestID.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := requestLogger(base, r)
			ctx := appctx.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(base *slog.Logger, r *http.Request) *slog.Logger {
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", clientIP(r),
	)
}

// clientIP is the peer address without port. The desk listens for a local
// operator and the bridge, so forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

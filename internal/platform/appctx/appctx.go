// Package appctx carries request-scoped values, the request logger in
// particular, through context.Context.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// Logger returns the request logger, or fallback when the context carries
// none. A nil fallback yields slog.Default().
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

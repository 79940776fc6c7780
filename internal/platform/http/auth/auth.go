// Package auth provides the shared-token gate used by the feed ingress.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/api"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
)

// TokenGateConfig configures NewTokenGate.
type TokenGateConfig struct {
	// Token is the expected bearer token. Empty disables the gate.
	Token string
	Log   *slog.Logger
}

// NewTokenGate returns middleware that rejects requests whose bearer token
// does not match cfg.Token with 401.
func NewTokenGate(cfg TokenGateConfig) func(http.Handler) http.Handler {
	log := logutil.NoopIfNil(cfg.Log)
	want := []byte(cfg.Token)

	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := extractBearerToken(r)
			if got == "" {
				api.WriteUnauthorized(w, "bearer token required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				appctx.Logger(r.Context(), log).Warn("feed token rejected")
				api.WriteUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken reads "Authorization: Bearer <token>". The scheme is
// matched case-insensitively.
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

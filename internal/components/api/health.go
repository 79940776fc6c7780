package api

import (
	"net/http"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

// HealthHandler reports liveness together with the session connection
// state returned by state.
func HealthHandler(state func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := "none"
		if state != nil {
			s = state()
		}
		WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Session: s})
	}
}

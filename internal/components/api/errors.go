// Package api holds the JSON envelope helpers shared by the HTTP services.
package api

import (
	"encoding/json"
	"net/http"
)

// Reason codes are part of the wire contract; clients switch on them.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonBadRequest      = "bad_request"
	ReasonInvalidBatch    = "invalid_batch"
	ReasonNotFound        = "not_found"
	ReasonNotEligible     = "not_eligible"
	ReasonNoSession       = "no_session"
	ReasonTooLarge        = "too_large"
	ReasonInternalError   = "internal_error"
)

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Code       string `json:"code"`
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, reasonCode, message string) {
	WriteJSON(w, status, ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(status),
			ReasonCode: reasonCode,
			Message:    message,
		},
	})
}

// WriteUnauthorized writes a 401.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ReasonUnauthenticated, message)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteBadRequest writes a 400.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteNotEligible writes a 409 for an action the selection does not allow.
func WriteNotEligible(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, ReasonNotEligible, message)
}

// WriteNoSession writes a 503 while the session is not up.
func WriteNoSession(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, ReasonNoSession, "no active session")
}

// WriteInternalError writes a 500. Keep internals out of message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// Package httpserver contains HTTP handlers and middleware for the evaluation API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

type errorBody struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels to a status and writes {error:true, message}.
// Internal failures get a generic message; the cause is logged instead.
func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	msg := "Internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code, codeStr, msg = http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		code, codeStr, msg = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrConflict):
		code, codeStr, msg = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		code, codeStr, msg = http.StatusTooManyRequests, "RATE_LIMITED", err.Error()
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, domain.ErrUpstreamUnavailable):
		code, codeStr, msg = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Upstream service unavailable"
	}
	if code >= 500 {
		LoggerFrom(r).Error("request failed", "status", code, "error", err.Error())
	}
	writeJSON(w, code, errorBody{Error: true, Code: codeStr, Message: msg, Details: details})
}

// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the calculate endpoints that turn a drawn expression or a typed
// question into an HTML solution, plus health and readiness probes. Business
// logic lives in the usecase package; this package maps it onto JSON.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// Client-facing messages for failures that carry no specific text.
const (
	msgInternal    = "An internal error occurred. Please try again later."
	msgRateLimited = "Rate limit exceeded. Please try again later."
	msgBadRequest  = "Invalid request."
)

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a safe message. Internal details
// go to the request log only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	msg := msgInternal
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		msg = msgBadRequest
		var ie *domain.InputError
		if errors.As(err, &ie) && ie.Message != "" {
			msg = ie.Message
		}
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
		msg = msgRateLimited
	}

	lg := observability.LoggerFromContext(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	} else {
		lg.Warn("request rejected", slog.Any("error", err), slog.Int("status", code))
	}
	writeJSON(w, code, errorEnvelope{Success: false, Error: msg})
}

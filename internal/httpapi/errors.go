package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"fixit/internal/core"
)

var errSessionNotFound = errors.New("session not found")

// Error is the JSON error envelope returned by the API.
type Error struct {
	Code    string
	Message string
	Status  int
	Fields  []string
}

// NewError constructs an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: code, Message: sanitize(message, 512), Status: status}
}

// WithFields attaches the offending field names.
func (e Error) WithFields(fields ...string) Error {
	e.Fields = append([]string(nil), fields...)
	return e
}

// WriteError writes err as JSON, tagging it with the request id when present.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if len(err.Fields) > 0 {
		payload["fields"] = err.Fields
	}
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		payload["request_id"] = sanitize(requestID, 80)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorFor maps a domain error onto its HTTP envelope.
func errorFor(err error) Error {
	var verr *core.ValidationError
	var terr *core.TransitionError
	switch {
	case errors.As(err, &verr):
		e := NewError("validation_failed", verr.Error(), http.StatusUnprocessableEntity)
		switch {
		case len(verr.Fields) > 0:
			e = e.WithFields(verr.Fields...)
		case verr.Field != "":
			e = e.WithFields(verr.Field)
		}
		return e
	case errors.As(err, &terr):
		return NewError("invalid_transition", terr.Error(), http.StatusConflict)
	case errors.Is(err, errSessionNotFound):
		return NewError("session_not_found", "session not found", http.StatusNotFound)
	case errors.Is(err, core.ErrClosed):
		return NewError("session_closed", "session has been closed", http.StatusGone)
	default:
		return NewError("internal_error", "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}

package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// ErrorBody is the JSON shape of every error response: {"error": {...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Common error codes
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, code, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := ErrorBody{Error: ErrorDetail{Code: code, Message: message, Fields: fields}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func BadRequest(w http.ResponseWriter, message string, fields map[string]string) {
	WriteError(w, http.StatusBadRequest, CodeValidation, message, fields)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimit, message, nil)
}

// FromError maps the domain error taxonomy onto HTTP. Unclassified errors are logged in full
// and, in production, answered with a generic message.
func FromError(w http.ResponseWriter, r *http.Request, err error, production bool) {
	var (
		verr     *domain.ValidationError
		conflict *domain.ConflictError
		notFound *domain.NotFoundError
		down     *domain.ServiceUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		msg := verr.Message
		if msg == "" {
			msg = "Invalid request"
		}
		BadRequest(w, msg, verr.Fields)
	case errors.As(err, &conflict):
		var fields map[string]string
		if conflict.Field != "" {
			fields = map[string]string{conflict.Field: conflict.Message}
		}
		WriteError(w, http.StatusConflict, CodeConflict, conflict.Message, fields)
	case errors.As(err, &notFound):
		NotFound(w, notFound.Error())
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "Not found")
	case errors.As(err, &down):
		logger.WarnContext(r.Context(), "dependency unavailable", "service", down.Service, "error", err)
		WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable,
			"The "+down.Service+" service is temporarily unavailable. Please try again later.", nil)
	case errors.Is(err, domain.ErrSlotTaken):
		WriteError(w, http.StatusConflict, CodeConflict, "This time slot is no longer available", nil)
	default:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg := err.Error()
		if production {
			msg = "Internal server error"
		}
		WriteError(w, http.StatusInternalServerError, CodeInternalError, msg, nil)
	}
}

package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kinna/kinna-backend/pkg/logger"
)

// ErrorBody is the payload under the top level "error" key.
type ErrorBody struct {
	Message    string       `json:"message"`
	Code       string       `json:"code,omitempty"`
	Fields     []FieldError `json:"fields,omitempty"`
	RetryAfter int          `json:"retry_after,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes {"error":{"message":...,"code":...}}.
func WriteError(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, ErrorResponse{Error: ErrorBody{Message: message, Code: code}})
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

// Validation reports field level problems with a 400.
func Validation(w http.ResponseWriter, fields []FieldError) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Message: "Validation failed",
		Code:    CodeInvalidInput,
		Fields:  fields,
	}})
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func InvalidToken(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeInvalidToken)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// RateLimit writes a 429 with a Retry-After header and retry_after field.
func RateLimit(w http.ResponseWriter, message string, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	JSON(w, http.StatusTooManyRequests, ErrorResponse{Error: ErrorBody{
		Message:    message,
		Code:       CodeRateLimit,
		RetryAfter: retryAfterSeconds,
	}})
}

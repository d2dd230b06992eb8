package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/pkg/logger"
)

// RequestID adds a unique request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ServiceName adds service name to context for logging
func ServiceName(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), logger.ServiceKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging writes one structured access log line per request and recovers panics.
func Logging(next http.Handler) http.Handler {
	return middleware.RequestLogger(&structuredLogger{})(middleware.Recoverer(next))
}

type structuredLogger struct{}

func (l *structuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{request: r}
}

type logEntry struct {
	request *http.Request
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	args := []any{
		"method", e.request.Method,
		"path", e.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"remote_addr", e.request.RemoteAddr,
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(e.request.Context(), "HTTP request completed", args...)
		return
	}
	logger.InfoContext(e.request.Context(), "HTTP request completed", args...)
}

func (e *logEntry) Panic(v any, stack []byte) {
	logger.ErrorContext(e.request.Context(), "HTTP request panic",
		"panic", v,
		"stack", string(stack),
		"method", e.request.Method,
		"path", e.request.URL.Path,
	)
}

// Health answers GET /healthz without touching the rest of the chain.
func Health(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

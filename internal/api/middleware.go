package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB). Flow
// definitions are small; anything larger is a client error.
const maxRequestBodySize = 1 << 20

// Headers adds the version and request-id response headers. An incoming
// X-Request-Id is echoed back; otherwise one is generated.
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = "req_" + core.NewUUIDv7()
		}
		w.Header().Set("X-Request-Id", requestID)
		w.Header().Set("Floworc-Version", core.Version)
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs HTTP requests with structured logging.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", w.Header().Get("X-Request-Id"),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// LimitBody restricts request body size.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateContentType rejects body-carrying requests that are not JSON.
func ValidateContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusUnsupportedMediaType,
					core.NewValidationError("unsupported content type", map[string]any{
						"content_type": ct,
					}))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIKey rejects requests without the configured bearer token. An
// empty key disables the check.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+apiKey {
				WriteError(w, http.StatusUnauthorized,
					core.NewValidationError("missing or invalid API key", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

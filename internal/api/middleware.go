package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/carbon-tracker/internal/logging"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequestIDHeader carries the request id back to the client
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware assigns a request id, attaches a request-scoped logger to
// the context and logs each request when it completes.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		logger := logging.GetGlobalLogger().WithField("request_id", requestID)
		ctx := logging.WithLogger(r.Context(), logger)

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware recovers from panics and returns 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.FromContext(r.Context()).WithFields(map[string]interface{}{
					"panic": err,
					"stack": string(debug.Stack()),
				}).Error("PANIC")
				respondError(w, http.StatusInternalServerError, ErrCodeInternalError, genericErrorMessage)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware requires a valid bearer token and stores its user id in the
// request context.
func AuthMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Not authorized, no token")
				return
			}

			userID, err := tokens.UserID(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).Debug("Rejected bearer token")
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Not authorized, token failed")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithField("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext returns the authenticated user id
func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sentra-security/sentra/internal/ctxkey"
)

// correlationIDContextKey is the context key type for the request
// correlation id.
type correlationIDContextKey struct{}

// CorrelationIDKey is the context key for the correlation id.
var CorrelationIDKey = correlationIDContextKey{}

// LoggerKey is the context key for the request-scoped logger.
var LoggerKey = ctxkey.LoggerKey{}

// CorrelationIDHeader is the inbound header carrying the caller's
// correlation id, echoed verbatim into the decision record and telemetry
// line. Absent means empty: Sentra never invents a correlationId on the
// caller's behalf, since callers match it against their own logs.
const CorrelationIDHeader = "x-ms-correlation-id"

// CorrelationIDMiddleware extracts the caller's correlation id, echoing
// "" when absent, and enriches the request-scoped logger with it.
func CorrelationIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationIDHeader)

			enrichedLogger := logger.With("correlation_id", correlationID)

			ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationIDFromContext retrieves the correlation id stored by
// CorrelationIDMiddleware, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

// requestIDContextKey is the context key type for the internal request id.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the internal request id.
var RequestIDKey = requestIDContextKey{}

// RequestIDMiddleware extracts or generates an internal request id and
// enriches the request-scoped logger with it, independent of the caller's
// correlationId. Every request gets one, even when the caller sends no
// x-ms-correlation-id, so log lines for anonymous callers stay traceable.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			base := logger
			if existing, ok := r.Context().Value(LoggerKey).(*slog.Logger); ok {
				base = existing
			}
			enrichedLogger := base.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext retrieves the internal request id stored by
// RequestIDMiddleware, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// LoggerFromContext retrieves the request-scoped logger, falling back to
// slog.Default() if none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// StrictAuthMiddleware rejects requests whose bearer token is not in the
// configured allowlist. An empty allowlist disables the check entirely
// (no auth configured). Rejections write the structured 2001 error
// response themselves and short-circuit the chain.
func StrictAuthMiddleware(allowedTokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedTokens))
	for _, t := range allowedTokens {
		allowed[t] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || !tokenAllowed(allowed, token) {
				writeErrorResponse(w, errUnauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, returning "" if absent or malformed.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenAllowed performs a constant-time membership check against each
// allowlist entry to avoid leaking token length/content through timing.
func tokenAllowed(allowed map[string]struct{}, token string) bool {
	for candidate := range allowed {
		if len(candidate) == len(token) && subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// backend/src/handlers/middleware.go
package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/username/agriarche/backend/src/config"
	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/utils"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// generated requestID to every request's context.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyMiddleware guards the API with the shared access token. The token
// travels in the access_token header, matching what the dashboard client
// already sends.
func APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		token := r.Header.Get("access_token")
		if token == "" {
			ctxLogger.Debug("APIKeyMiddleware: access_token header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "access_token header required", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(config.Cfg.APIKey)) != 1 {
			ctxLogger.Warn("APIKeyMiddleware: invalid access token", "path", r.URL.Path)
			utils.SendJSONError(w, "Invalid access token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

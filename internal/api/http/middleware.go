package http

import (
	"context"
	"net/http"
	"time"

	"checkin-sync/internal/config"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/security"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// AuthMiddleware authenticates requests by the security level of their
// route. With enforce off, tokens are still decoded when present but
// missing or invalid ones are not rejected.
type AuthMiddleware struct {
	tokenManager security.TokenManager
	enforce      bool
}

func NewAuthMiddleware(tm security.TokenManager, enforce bool) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm, enforce: enforce}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.SecurityAccess
		if route := mux.CurrentRoute(r); route != nil {
			level = config.GetSecurityLevel(route.GetName())
		}

		token := bearerToken(r)
		if token == "" {
			if level == config.SecurityAccess && m.enforce {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "authorization token is not provided")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			logger.WarnContext(r.Context(), "Rejected bearer token", "path", r.URL.Path, "error", err)
			if level == config.SecurityAccess && m.enforce {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "invalid token: "+err.Error())
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger tags each request with an id and logs its outcome. The
// websocket route is logged by its own handler since it hijacks the
// connection.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		if route := mux.CurrentRoute(r); route != nil && route.GetName() == "PushSocket" {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		)
	})
}

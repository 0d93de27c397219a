package http

import (
	"context"
	"net/http"
	"strings"

	"checkin-sync/internal/security"
)

type contextKey int

const (
	claimsKey contextKey = iota
	requestIDKey
)

// GetStaffFromContext returns the claims of the authenticated staff user,
// if the request carried a valid token.
func GetStaffFromContext(ctx context.Context) (*security.StaffClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.StaffClaims)
	return claims, ok
}

// GetRequestIDFromContext returns the id assigned by the request logger.
func GetRequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	// Remove Bearer prefix if present
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"appointment-booking-api/internal/auth"
	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// UserIDHeader is the legacy identity header. It is only accepted when it
// agrees with the bearer token.
const UserIDHeader = "X-User-Id"

// ClaimsFrom returns the verified token claims, if the request had any.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// WithClaims is used by tests that bypass RequireAuth.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	ctx = logging.WithUserID(ctx, c.UserID)
	return context.WithValue(ctx, claimsKey, c)
}

func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// token from Authorization: Bearer <jwt>
			raw := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if hv := r.Header.Get(UserIDHeader); hv != "" {
				id, err := strconv.ParseInt(hv, 10, 64)
				if err != nil || id != claims.UserID {
					writeError(w, http.StatusForbidden, "X-User-Id does not match the authenticated user")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if c.Role != role {
				writeError(w, http.StatusForbidden, "requires role "+string(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

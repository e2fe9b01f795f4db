package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/convoflow/convoflow/internal/api"
)

type contextKey string

const BusinessIDKey contextKey = "business_id"

// AuthValidator resolves a raw API key to the business it belongs to.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, raw string) (string, error)
}

// APIKeyAuth authenticates requests with a Bearer API key and stashes
// the resolved business id in the request context. Revoked and unknown
// keys are indistinguishable to the caller.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			raw := strings.TrimPrefix(authHeader, "Bearer ")

			businessID, err := validator.ValidateAPIKey(r.Context(), raw)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), BusinessIDKey, businessID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetBusinessID returns the authenticated business id from context.
func GetBusinessID(ctx context.Context) string {
	businessID, _ := ctx.Value(BusinessIDKey).(string)
	return businessID
}

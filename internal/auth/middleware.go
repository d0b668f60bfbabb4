package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or shadow values
// stored under it.
type contextKey string

const bearerTokenKey contextKey = "bearerToken"

// RequireBearer is a middleware that rejects requests without an
// "Authorization: Bearer <token>" header with 403 Forbidden and stores the
// raw token in the request context for the handler.
//
// It does not verify the token. The services verify it themselves so that
// every owner-scoped operation is guarded even when called outside HTTP.
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","message":"not authenticated"}` + "\n"))
			return
		}

		ctx := context.WithValue(r.Context(), bearerTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromContext returns the bearer token stored by RequireBearer.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey).(string)
	return token, ok && token != ""
}

// BearerToken extracts the token from the Authorization header.
// The scheme is matched case-insensitively, as RFC 6750 allows.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

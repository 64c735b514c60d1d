// ABOUTME: Session middleware identifying the console operator behind a request.
// ABOUTME: Parses Bearer tokens and stores the operator name in the request context.

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "user"

// DefaultUser is the operator assumed when no token names one.
const DefaultUser = "admin"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithUser(r.Context(), extractUser(r.Header.Get("Authorization")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithUser returns a context carrying the operator name.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) string {
	user, ok := ctx.Value(userContextKey).(string)
	if !ok || user == "" {
		return DefaultUser
	}
	return user
}

func extractUser(authHeader string) string {
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return DefaultUser
	}

	// "user:<name>" names the operator explicitly
	if name, ok := strings.CutPrefix(token, "user:"); ok && name != "" {
		return name
	}

	// Opaque session tokens are not validated; the console runs as the default operator.
	return DefaultUser
}

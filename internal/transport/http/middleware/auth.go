package middleware

import (
	"context"
	"net/http"
	"strings"

	"campusleave/internal/domain/auth"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// Auth decodes a bearer token when present and stashes the claims in the
// request context. It never rejects; route guards decide what anonymous
// requests may reach.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(ctx context.Context) (auth.Claims, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.Claims)
	return user, ok
}

// WithUser injects claims directly, for tests exercising guarded handlers.
func WithUser(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyUser, claims)
}

package middleware

import (
	"context"
	"net/http"

	goAuthz "github.com/MrEthical07/goAuthz"
)

// Authorizer answers permission checks for the session in ctx.
// *goAuthz.Engine implements it.
type Authorizer interface {
	Can(ctx context.Context, resource, action, scope string) (bool, error)
}

// ScopeFunc derives the permission scope from a request. A nil ScopeFunc
// checks without a scope.
type ScopeFunc func(*http.Request) string

// RequirePermission rejects requests whose session actor lacks
// resource:action. It must run behind Guard; without a session it answers
// 401, a denial 403, and a store failure 503.
func RequirePermission(engine Authorizer, resource, action string, scopeFn ScopeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := goAuthz.SessionFromContext(r.Context()); !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var scope string
			if scopeFn != nil {
				scope = scopeFn(r)
			}

			allowed, err := engine.Can(r.Context(), resource, action, scope)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	goAuthz "github.com/MrEthical07/goAuthz"
)

// ElevationHeader carries the token returned by Engine.ElevateSession.
const ElevationHeader = "X-Elevation-Token"

// ElevationValidator checks an elevation token against a session token.
// *goAuthz.Engine implements it.
type ElevationValidator interface {
	ValidateElevation(ctx context.Context, elevationToken, sessionToken string) (*goAuthz.SessionInfo, error)
}

// RequireElevation admits only requests carrying a valid elevation token
// bound to the Guard-validated session.
func RequireElevation(engine ElevationValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionToken, ok := SessionTokenFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			elevationToken := r.Header.Get(ElevationHeader)
			if elevationToken == "" {
				http.Error(w, "elevation required", http.StatusForbidden)
				return
			}

			if _, err := engine.ValidateElevation(r.Context(), elevationToken, sessionToken); err != nil {
				switch {
				case errors.Is(err, goAuthz.ErrStoreUnavailable):
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				case errors.Is(err, goAuthz.ErrSessionNotFound):
					http.Error(w, "unauthorized", http.StatusUnauthorized)
				default:
					http.Error(w, "elevation required", http.StatusForbidden)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

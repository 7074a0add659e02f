package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goAuthz "github.com/MrEthical07/goAuthz"
	"github.com/MrEthical07/goAuthz/session"
)

// SessionValidator resolves a session token. *goAuthz.Engine implements it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token, ip string) (*session.Session, error)
}

type sessionTokenContextKey struct{}

// SessionTokenFromContext returns the raw token Guard validated. It is only
// kept in the request context, never logged.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenContextKey{}).(string)
	return token, ok && token != ""
}

// Option configures Guard.
type Option func(*guardOptions)

type guardOptions struct {
	cookieName      string
	forwardedHeader string
}

// WithCookie makes Guard fall back to the named cookie when no bearer
// header is present.
func WithCookie(name string) Option {
	return func(o *guardOptions) {
		o.cookieName = name
	}
}

// WithForwardedHeader reads the client IP from the first entry of header,
// for deployments behind a trusted proxy.
func WithForwardedHeader(header string) Option {
	return func(o *guardOptions) {
		o.forwardedHeader = header
	}
}

// Guard validates the caller's session and attaches it to the request
// context. Missing, unknown, expired and terminated sessions get 401; a
// store failure gets 503.
func Guard(engine SessionValidator, opts ...Option) func(http.Handler) http.Handler {
	var o guardOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && o.cookieName != "" {
				token, ok = cookieToken(r, o.cookieName)
			}
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ip := clientIP(r, o.forwardedHeader)
			ctx := goAuthz.WithClientIP(r.Context(), ip)
			ctx = goAuthz.WithUserAgent(ctx, r.UserAgent())

			sess, err := engine.ValidateSession(ctx, token, ip)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if sess == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = goAuthz.WithSession(ctx, goAuthz.NewSessionInfo(sess))
			ctx = context.WithValue(ctx, sessionTokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func cookieToken(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func clientIP(r *http.Request, forwardedHeader string) string {
	if forwardedHeader != "" {
		if v := r.Header.Get(forwardedHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goAuthz.ErrStoreUnavailable), errors.Is(err, goAuthz.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

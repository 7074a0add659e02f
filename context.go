package goAuthz

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type sessionContextKey struct{}

// WithClientIP attaches the caller’s IP address to ctx. The Engine records
// it on created sessions and compares it on validation when IP change
// detection is enabled.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Session creation
// parses it into the device record and fingerprint.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithSession attaches a validated session to ctx. The HTTP guard sets it
// for downstream handlers.
func WithSession(ctx context.Context, info *SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, info)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (*SessionInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(sessionContextKey{}).(*SessionInfo)
	return info, ok && info != nil
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

package goAuthz

import (
	"context"
	"strconv"
	"time"

	internalflows "github.com/MrEthical07/goAuthz/internal/flows"
	"github.com/MrEthical07/goAuthz/session"
)

// SessionOptions carries request attributes recorded on a new session.
// Empty IPAddress and UserAgent fall back to WithClientIP and WithUserAgent
// values on the context. A zero TTL selects Session.DefaultTTL.
type SessionOptions struct {
	IPAddress string
	UserAgent string
	TTL       time.Duration
}

// SessionInfo defines a public type used by goAuthz APIs.
//
// SessionInfo is the token-free view of a session handed to callers and
// attached to request contexts.
type SessionInfo struct {
	ID          string
	ActorID     string
	Device      session.Device
	Fingerprint string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NewSessionInfo returns the public view of s, or nil for a nil session.
func NewSessionInfo(s *session.Session) *SessionInfo {
	if s == nil {
		return nil
	}
	return &SessionInfo{
		ID:          s.ID,
		ActorID:     s.ActorID,
		Device:      s.Device,
		Fingerprint: s.Fingerprint,
		IPAddress:   s.IPAddress,
		UserAgent:   s.UserAgent,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession fails with ErrActorNotFound or ErrActorInactive for actors
// that may not sign in. When the actor already holds the configured maximum
// of live sessions, the oldest are terminated first. The returned session
// carries the plaintext token; it is not recoverable afterwards.
func (e *Engine) CreateSession(ctx context.Context, actorID string, opts SessionOptions) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if opts.IPAddress == "" {
		opts.IPAddress = clientIPFromContext(ctx)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = userAgentFromContext(ctx)
	}
	return e.flows.CreateSession(ctx, actorID, internalflows.SessionOptions{
		IPAddress: opts.IPAddress,
		UserAgent: opts.UserAgent,
		TTL:       opts.TTL,
	})
}

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession returns nil without an error for unknown, terminated and
// expired tokens and for sessions whose actor is gone or inactive. An
// expired session is marked terminated as a side effect. ip may be empty;
// otherwise it is compared against the creation IP.
func (e *Engine) ValidateSession(ctx context.Context, token, ip string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.flows.ValidateSession(ctx, token, ip)
}

// TerminateSession ends one session. Terminating an unknown or already
// terminated session is not an error.
func (e *Engine) TerminateSession(ctx context.Context, sessionID, reason string) error {
	_, err := e.TerminateSessions(ctx, []string{sessionID}, reason)
	return err
}

// TerminateSessions describes the terminatesessions operation and its observable behavior.
//
// TerminateSessions reports how many of ids were live before the call. An
// empty reason records session.ReasonRevoked.
func (e *Engine) TerminateSessions(ctx context.Context, ids []string, reason string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.flows.TerminateSessions(ctx, ids, reason)
}

// TerminateAllUserSessions describes the terminateallusersessions operation and its observable behavior.
//
// Every live session of actorID except exceptID is terminated. Pass an
// empty exceptID to sign the actor out everywhere.
func (e *Engine) TerminateAllUserSessions(ctx context.Context, actorID, exceptID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.flows.TerminateAllUserSessions(ctx, actorID, exceptID, session.ReasonRevoked)
}

func (e *Engine) ListActiveSessions(ctx context.Context, actorID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list, err := e.flows.ListActiveSessions(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, *NewSessionInfo(s))
	}
	return out, nil
}

// ActiveSessionCount describes the activesessioncount operation and its observable behavior.
func (e *Engine) ActiveSessionCount(ctx context.Context, actorID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	list, err := e.flows.ListActiveSessions(ctx, actorID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// observeSession runs anomaly inspection for a freshly created session.
// Failures are logged and never reach the caller.
func (e *Engine) observeSession(ctx context.Context, created *session.Session) {
	if e.detector == nil || created == nil {
		return
	}

	now := e.now()
	active, err := e.sessions.ListActive(ctx, created.ActorID, now)
	if err != nil {
		e.log.Error(err, "list sessions for anomaly inspection", "actor", created.ActorID)
		return
	}

	for _, f := range e.detector.Inspect(created.ActorID, created.ID, active, now) {
		e.metricInc(MetricAnomalyFinding)
		if e.findings != nil {
			if err := e.findings.RecordFinding(ctx, f); err != nil {
				e.log.Error(err, "record security finding", "actor", f.ActorID, "type", f.Type)
			}
		}

		finding := f
		e.emitAudit(ctx, auditEventSecurityFinding, true, finding.ActorID, finding.SessionID, nil, func() map[string]string {
			meta := map[string]string{
				"type":     finding.Type,
				"severity": string(finding.Severity),
				"active":   strconv.Itoa(len(active)),
			}
			for k, v := range finding.Details {
				meta[k] = v
			}
			return meta
		})
	}
}

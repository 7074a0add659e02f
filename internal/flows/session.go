package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAuthz/internal"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
)

// SessionOptions carries the request attributes recorded on a new session.
type SessionOptions struct {
	IPAddress string
	UserAgent string
	TTL       time.Duration
}

type SessionMetrics struct {
	Created    int
	Evicted    int
	Expired    int
	Terminated int
	Invalid    int
	IPChanged  int
	Validated  int
}

type SessionEvents struct {
	Created    string
	Evicted    string
	Expired    string
	Terminated string
	IPChanged  string
}

type SessionErrors struct {
	EngineNotReady      error
	ActorNotFound       error
	ActorInactive       error
	SessionLimitInvalid error
	StoreUnavailable    error
}

type SessionDeps struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	MaxSessions    int
	DetectIPChange bool

	Now          func() time.Time
	GetActor     func(context.Context, string) (permission.Actor, error)
	Store        session.Store
	LockActor    func(string) func()
	NewSessionID func() string
	NewToken     func() (string, error)
	HashToken    func(string) [32]byte
	ValidToken   func(string) bool

	// Observe receives every created session after it is persisted. It must
	// not fail the creation.
	Observe func(context.Context, *session.Session)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

// RunCreateSession persists a new session for an active actor, deactivating
// the actor's oldest live sessions so at most MaxSessions remain live. The
// returned session is the only place the plaintext token appears.
func RunCreateSession(ctx context.Context, actorID string, opts SessionOptions, deps SessionDeps) (*session.Session, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.GetActor == nil || deps.NewSessionID == nil {
		return nil, deps.Errors.EngineNotReady
	}

	actor, err := deps.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, permission.ErrActorNotFound) {
			return nil, deps.Errors.ActorNotFound
		}
		return nil, deps.unavailable(err)
	}
	if !actor.IsActive {
		return nil, deps.Errors.ActorInactive
	}

	token, err := deps.NewToken()
	if err != nil {
		return nil, err
	}

	now := deps.Now()
	device := session.ParseUserAgent(opts.UserAgent)
	sess := &session.Session{
		ID:          deps.NewSessionID(),
		ActorID:     actor.ID,
		TokenHash:   deps.HashToken(token),
		IPAddress:   opts.IPAddress,
		UserAgent:   opts.UserAgent,
		Device:      device,
		Fingerprint: session.Fingerprint(device, opts.IPAddress),
		Active:      true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(deps.sessionTTL(opts.TTL)),
	}

	evicted, err := func() ([]string, error) {
		unlock := deps.LockActor(actor.ID)
		defer unlock()
		return deps.Store.CreateWithLimit(ctx, sess, deps.MaxSessions, now)
	}()
	if err != nil {
		if errors.Is(err, session.ErrInvalidLimit) {
			return nil, deps.Errors.SessionLimitInvalid
		}
		return nil, deps.unavailable(err)
	}

	for _, id := range evicted {
		deps.MetricInc(deps.Metrics.Evicted)
		deps.EmitAudit(ctx, deps.Events.Evicted, true, actor.ID, id, nil, func() map[string]string {
			return map[string]string{
				"reason":      session.ReasonSessionLimit,
				"replaced_by": sess.ID,
			}
		})
	}
	deps.MetricInc(deps.Metrics.Created)
	deps.EmitAudit(ctx, deps.Events.Created, true, actor.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{
			"device":  string(device.Type),
			"browser": device.Browser,
			"os":      device.OS,
		}
	})

	deps.Observe(ctx, sess.Clone())

	out := sess.Clone()
	out.Token = token
	return out, nil
}

// RunValidateSession resolves token to a live session. Unknown, inactive
// and expired sessions yield nil without an error; an expired session is
// marked terminated on the way out.
func RunValidateSession(ctx context.Context, token, ip string, deps SessionDeps) (*session.Session, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.GetActor == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if !deps.ValidToken(token) {
		deps.MetricInc(deps.Metrics.Invalid)
		return nil, nil
	}

	sess, err := deps.Store.GetByTokenHash(ctx, deps.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			deps.MetricInc(deps.Metrics.Invalid)
			return nil, nil
		}
		return nil, deps.unavailable(err)
	}
	if !sess.Active {
		deps.MetricInc(deps.Metrics.Invalid)
		return nil, nil
	}

	now := deps.Now()
	if !now.Before(sess.ExpiresAt) {
		changed, err := deps.Store.Deactivate(ctx, sess.ID, session.ReasonExpired)
		if err != nil {
			return nil, deps.unavailable(err)
		}
		if changed {
			deps.MetricInc(deps.Metrics.Expired)
			deps.EmitAudit(ctx, deps.Events.Expired, true, sess.ActorID, sess.ID, nil, nil)
		}
		return nil, nil
	}

	actor, err := deps.GetActor(ctx, sess.ActorID)
	if err != nil {
		if errors.Is(err, permission.ErrActorNotFound) {
			deps.MetricInc(deps.Metrics.Invalid)
			return nil, nil
		}
		return nil, deps.unavailable(err)
	}
	if !actor.IsActive {
		deps.MetricInc(deps.Metrics.Invalid)
		return nil, nil
	}

	if deps.DetectIPChange && ip != "" && sess.IPAddress != "" && ip != sess.IPAddress {
		deps.MetricInc(deps.Metrics.IPChanged)
		deps.EmitAudit(ctx, deps.Events.IPChanged, true, sess.ActorID, sess.ID, nil, func() map[string]string {
			return map[string]string{
				"created_ip": sess.IPAddress,
				"current_ip": ip,
			}
		})
	}

	deps.MetricInc(deps.Metrics.Validated)
	return sess, nil
}

// RunTerminateSessions deactivates every listed session and reports how many
// were live before the call.
func RunTerminateSessions(ctx context.Context, ids []string, reason string, deps SessionDeps) (int, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if reason == "" {
		reason = session.ReasonRevoked
	}

	n := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		changed, err := deps.Store.Deactivate(ctx, id, reason)
		if err != nil {
			return n, deps.unavailable(err)
		}
		if !changed {
			continue
		}
		n++
		deps.MetricInc(deps.Metrics.Terminated)
		deps.EmitAudit(ctx, deps.Events.Terminated, true, "", id, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
	}
	return n, nil
}

func RunTerminateAllUserSessions(ctx context.Context, actorID, exceptID, reason string, deps SessionDeps) (int, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if reason == "" {
		reason = session.ReasonRevoked
	}

	ids, err := deps.Store.DeactivateAll(ctx, actorID, exceptID, reason)
	if err != nil {
		return 0, deps.unavailable(err)
	}
	for _, id := range ids {
		deps.MetricInc(deps.Metrics.Terminated)
		deps.EmitAudit(ctx, deps.Events.Terminated, true, actorID, id, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
	}
	return len(ids), nil
}

func RunListActiveSessions(ctx context.Context, actorID string, deps SessionDeps) ([]*session.Session, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil {
		return nil, deps.Errors.EngineNotReady
	}
	list, err := deps.Store.ListActive(ctx, actorID, deps.Now())
	if err != nil {
		return nil, deps.unavailable(err)
	}
	return list, nil
}

func (d SessionDeps) sessionTTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = d.DefaultTTL
	}
	if d.MaxTTL > 0 && ttl > d.MaxTTL {
		ttl = d.MaxTTL
	}
	return ttl
}

func (d SessionDeps) unavailable(err error) error {
	return fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.DefaultTTL <= 0 {
		deps.DefaultTTL = 24 * time.Hour
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockActor == nil {
		deps.LockActor = func(string) func() { return func() {} }
	}
	if deps.NewToken == nil {
		deps.NewToken = func() (string, error) {
			return internal.NewSessionToken(internal.SessionTokenBytes)
		}
	}
	if deps.HashToken == nil {
		deps.HashToken = internal.HashSessionToken
	}
	if deps.ValidToken == nil {
		deps.ValidToken = internal.ValidTokenShape
	}
	if deps.Observe == nil {
		deps.Observe = func(context.Context, *session.Session) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

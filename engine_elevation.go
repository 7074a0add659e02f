package goAuthz

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goAuthz/jwt"
)

// Elevation defines a public type used by goAuthz APIs.
//
// Token is a signed JWT bound to one session. It is valid until ExpiresAt
// and only while the session stays live.
type Elevation struct {
	Token     string
	SessionID string
	Method    string
	ExpiresAt time.Time
}

// ElevateSession describes the elevatesession operation and its observable behavior.
//
// ElevateSession resolves sessionToken, checks code as a login second
// factor for the session's actor and issues a short-lived elevation token.
// Actors without an enabled second factor cannot elevate and receive
// ErrTwoFactorNotEnabled. A wrong code returns ErrTwoFactorInvalid.
func (e *Engine) ElevateSession(ctx context.Context, sessionToken, code string) (*Elevation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.elevation == nil {
		return nil, ErrElevationDisabled
	}

	sess, err := e.flows.ValidateSession(ctx, sessionToken, clientIPFromContext(ctx))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		e.rejectElevation(ctx, "", "", ErrSessionNotFound)
		return nil, ErrSessionNotFound
	}

	res, err := e.flows.VerifyForLogin(ctx, sess.ActorID, code)
	if err != nil {
		e.rejectElevation(ctx, sess.ActorID, sess.ID, err)
		return nil, err
	}
	if !res.Required {
		e.rejectElevation(ctx, sess.ActorID, sess.ID, ErrTwoFactorNotEnabled)
		return nil, ErrTwoFactorNotEnabled
	}
	if !res.Success {
		e.rejectElevation(ctx, sess.ActorID, sess.ID, ErrTwoFactorInvalid)
		return nil, ErrTwoFactorInvalid
	}

	method := jwt.ElevationTOTP
	if res.IsBackupCode {
		method = jwt.ElevationBackupCode
	}
	token, expires, err := e.elevation.CreateElevation(sess.ID, sess.ActorID, method)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricElevationIssued)
	e.emitAudit(ctx, auditEventElevationIssued, true, sess.ActorID, sess.ID, nil, func() map[string]string {
		return map[string]string{
			"method":     method,
			"expires_at": expires.UTC().Format(time.RFC3339),
		}
	})
	return &Elevation{
		Token:     token,
		SessionID: sess.ID,
		Method:    method,
		ExpiresAt: expires,
	}, nil
}

// ValidateElevation describes the validateelevation operation and its observable behavior.
//
// ValidateElevation checks the signature and expiry of elevationToken, that
// it was issued for the session behind sessionToken, and that the session
// is still live. Every mismatch returns an error wrapping ErrElevationInvalid.
func (e *Engine) ValidateElevation(ctx context.Context, elevationToken, sessionToken string) (*SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.elevation == nil {
		return nil, ErrElevationDisabled
	}

	sess, err := e.flows.ValidateSession(ctx, sessionToken, clientIPFromContext(ctx))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	claims, err := e.elevation.VerifyForSession(elevationToken, sess.ID)
	if err != nil {
		e.rejectElevation(ctx, sess.ActorID, sess.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrElevationInvalid, err)
	}
	if claims.UID != sess.ActorID {
		e.rejectElevation(ctx, sess.ActorID, sess.ID, ErrElevationInvalid)
		return nil, ErrElevationInvalid
	}
	return NewSessionInfo(sess), nil
}

func (e *Engine) rejectElevation(ctx context.Context, actorID, sessionID string, err error) {
	e.metricInc(MetricElevationRejected)
	e.emitAudit(ctx, auditEventElevationRejected, false, actorID, sessionID, err, nil)
}

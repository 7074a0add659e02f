package goAuthz

import "errors"

var (
	// ErrActorNotFound is returned by session creation for unknown actors.
	ErrActorNotFound = errors.New("actor not found")
	// ErrActorInactive is an exported constant or variable used by the authorization engine.
	ErrActorInactive = errors.New("actor inactive")
	// ErrSessionLimitInvalid is returned when the configured per-actor session limit is below one.
	ErrSessionLimitInvalid = errors.New("session limit invalid")
	// ErrSessionNotFound is returned by elevation when the session token does not resolve to a live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the authorization engine.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotPending is an exported constant or variable used by the authorization engine.
	ErrTwoFactorNotPending = errors.New("two-factor setup not pending")
	// ErrTwoFactorNotEnabled is an exported constant or variable used by the authorization engine.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorInvalid is an exported constant or variable used by the authorization engine.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorRateLimited is an exported constant or variable used by the authorization engine.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrElevationInvalid is returned for elevation tokens that fail signature, expiry or session binding checks.
	ErrElevationInvalid = errors.New("elevation invalid")
	// ErrElevationDisabled is returned when no elevation signing key is configured.
	ErrElevationDisabled = errors.New("elevation disabled")
	// ErrPermissionDenied is an exported constant or variable used by the authorization engine.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable wraps actor, permission, session and two-factor backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrBroadcastUnavailable wraps transport failures while publishing a permission update.
	ErrBroadcastUnavailable = errors.New("broadcast unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authorization engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

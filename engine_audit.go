package goAuthz

import (
	"context"
	"errors"
)

const (
	auditEventSessionCreated          = "session_created"
	auditEventSessionEvicted          = "session_evicted"
	auditEventSessionExpired          = "session_expired"
	auditEventSessionTerminated       = "session_terminated"
	auditEventSessionIPChanged        = "ip_changed"
	auditEventTwoFactorSetup          = "two_factor_setup_requested"
	auditEventTwoFactorEnabled        = "two_factor_enabled"
	auditEventTwoFactorEnableFailed   = "two_factor_enable_failed"
	auditEventTwoFactorDisabled       = "two_factor_disabled"
	auditEventTwoFactorSuccess        = "two_factor_success"
	auditEventTwoFactorFailure        = "two_factor_failure"
	auditEventBackupCodeUsed          = "backup_code_used"
	auditEventBackupCodesRegenerated  = "backup_codes_regenerated"
	auditEventElevationIssued         = "elevation_issued"
	auditEventElevationRejected       = "elevation_rejected"
	auditEventSecurityFinding         = "security_finding"
	auditEventPermissionUpdateApplied = "permission_update_applied"
)

// AuditErrorCode defines a public type used by goAuthz APIs.
//
// Audit events carry a code instead of the raw error text so backend
// messages never reach the sink.
type AuditErrorCode string

const (
	auditErrActorNotFound    AuditErrorCode = "actor_not_found"
	auditErrActorInactive    AuditErrorCode = "actor_inactive"
	auditErrSessionNotFound  AuditErrorCode = "session_not_found"
	auditErrSessionLimit     AuditErrorCode = "session_limit_invalid"
	auditErrTwoFactorInvalid AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorState   AuditErrorCode = "two_factor_state"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrElevationInvalid AuditErrorCode = "elevation_invalid"
	auditErrPermissionDenied AuditErrorCode = "permission_denied"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrBroadcast        AuditErrorCode = "broadcast_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actorID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		ActorID:   actorID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrActorNotFound):
		return auditErrActorNotFound
	case errors.Is(err, ErrActorInactive):
		return auditErrActorInactive
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionLimitInvalid):
		return auditErrSessionLimit
	case errors.Is(err, ErrTwoFactorInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotPending),
		errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrTwoFactorState
	case errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrElevationInvalid),
		errors.Is(err, ErrElevationDisabled):
		return auditErrElevationInvalid
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrBroadcastUnavailable):
		return auditErrBroadcast
	default:
		return auditErrInternal
	}
}

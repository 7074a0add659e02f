package goAuthz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/MrEthical07/goAuthz/anomaly"
	"github.com/MrEthical07/goAuthz/broadcast"
	"github.com/MrEthical07/goAuthz/cache"
	"github.com/MrEthical07/goAuthz/hashing"
	internalflows "github.com/MrEthical07/goAuthz/internal/flows"
	"github.com/MrEthical07/goAuthz/internal/keylock"
	"github.com/MrEthical07/goAuthz/internal/limiters"
	"github.com/MrEthical07/goAuthz/jwt"
	"github.com/MrEthical07/goAuthz/mfa"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
)

// twoFactorLimiter is satisfied by the Redis and in-process attempt limiters.
type twoFactorLimiter interface {
	Check(ctx context.Context, actorID string) error
	RecordFailure(ctx context.Context, actorID string) error
	Reset(ctx context.Context, actorID string) error
}

// Engine defines a public type used by goAuthz APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config
	log    logr.Logger
	now    func() time.Time

	actors      permission.ActorProvider
	permissions permission.Source
	sessions    session.Store
	twoFactor   mfa.Store
	findings    anomaly.FindingSink

	cache            *cache.Cache
	broadcaster      *broadcast.Broadcaster
	unsubscribeCache func()
	detector         *anomaly.Detector
	locks            *keylock.Map
	limiter          twoFactorLimiter
	hasher           *hashing.Argon2
	totp             *totpManager
	elevation        *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics
	flows   internalflows.Service
}

// Close describes the close operation and its observable behavior.
//
// Close detaches the cache from the broadcaster, closes the transport and
// drains the audit dispatcher. It is safe to call on a nil Engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.unsubscribeCache != nil {
		e.unsubscribeCache()
	}
	if e.broadcaster != nil {
		if err := e.broadcaster.Close(); err != nil {
			e.log.Error(err, "close broadcast transport")
		}
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CacheStats reports the decision cache counters.
func (e *Engine) CacheStats() cache.Stats {
	if e == nil || e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

// BroadcastStats reports publish and receive counters of the update broadcaster.
func (e *Engine) BroadcastStats() broadcast.Stats {
	if e == nil || e.broadcaster == nil {
		return broadcast.Stats{}
	}
	return e.broadcaster.Stats()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

/* ==== FLOW WIRING ==== */

func (e *Engine) authorizeFlowDeps() internalflows.AuthorizeDeps {
	return internalflows.AuthorizeDeps{
		CacheTTL:           e.config.Cache.TTL,
		Cache:              e.cache,
		GetActor:           e.actors.GetActor,
		PermissionsForRole: e.permissions.PermissionsForRole,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.AuthorizeMetrics{
			CacheHit:     int(MetricCacheHit),
			CacheMiss:    int(MetricCacheMiss),
			Allowed:      int(MetricAuthorizeAllowed),
			Denied:       int(MetricAuthorizeDenied),
			UnknownActor: int(MetricUnknownActor),
		},
		Errors: internalflows.AuthorizeErrors{
			EngineNotReady:   ErrEngineNotReady,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}

func (e *Engine) sessionFlowDeps() internalflows.SessionDeps {
	return internalflows.SessionDeps{
		DefaultTTL:     e.config.Session.DefaultTTL,
		MaxTTL:         e.config.Session.MaxTTL,
		MaxSessions:    e.config.Session.MaxSessionsPerActor,
		DetectIPChange: e.config.DeviceBinding.DetectIPChange,
		Now:            e.now,
		GetActor:       e.actors.GetActor,
		Store:          e.sessions,
		LockActor:      e.locks.Lock,
		NewSessionID:   uuid.NewString,
		Observe:        e.observeSession,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.SessionMetrics{
			Created:    int(MetricSessionCreated),
			Evicted:    int(MetricSessionEvicted),
			Expired:    int(MetricSessionExpired),
			Terminated: int(MetricSessionTerminated),
			Invalid:    int(MetricSessionInvalid),
			IPChanged:  int(MetricSessionIPChanged),
			Validated:  int(MetricSessionValidated),
		},
		Events: internalflows.SessionEvents{
			Created:    auditEventSessionCreated,
			Evicted:    auditEventSessionEvicted,
			Expired:    auditEventSessionExpired,
			Terminated: auditEventSessionTerminated,
			IPChanged:  auditEventSessionIPChanged,
		},
		Errors: internalflows.SessionErrors{
			EngineNotReady:      ErrEngineNotReady,
			ActorNotFound:       ErrActorNotFound,
			ActorInactive:       ErrActorInactive,
			SessionLimitInvalid: ErrSessionLimitInvalid,
			StoreUnavailable:    ErrStoreUnavailable,
		},
	}
}

func (e *Engine) twoFactorFlowDeps() internalflows.TwoFactorDeps {
	return internalflows.TwoFactorDeps{
		BackupCodeCount:  e.config.TOTP.BackupCodeCount,
		BackupCodeLength: e.config.TOTP.BackupCodeLength,
		Now:              e.now,
		CheckActor:       e.checkActiveActor,
		Store:            e.twoFactor,
		HashBackupCode: func(actorID, canonical string) (string, error) {
			return e.hasher.Hash(canonical, hashing.ActorSalt(actorID))
		},
		NewCodeID:            uuid.NewString,
		GenerateSecret:       e.totp.GenerateSecret,
		ProvisionURI:         e.totp.ProvisionURI,
		VerifyCode:           e.totp.VerifyBase32,
		CheckLimiter:         e.limiter.Check,
		RecordLimiterFailure: e.limiter.RecordFailure,
		ResetLimiter:         e.limiter.Reset,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrTwoFactorRateLimited)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.TwoFactorMetrics{
			SetupGenerated:         int(MetricTwoFactorSetup),
			Enabled:                int(MetricTwoFactorEnabled),
			Disabled:               int(MetricTwoFactorDisabled),
			VerifySuccess:          int(MetricTwoFactorSuccess),
			VerifyFailure:          int(MetricTwoFactorFailure),
			BackupCodeUsed:         int(MetricBackupCodeUsed),
			BackupCodesRegenerated: int(MetricBackupCodeRegenerated),
			RateLimited:            int(MetricTwoFactorRateLimited),
			Replayed:               int(MetricTwoFactorReplay),
		},
		Events: internalflows.TwoFactorEvents{
			SetupGenerated:         auditEventTwoFactorSetup,
			Enabled:                auditEventTwoFactorEnabled,
			EnableFailed:           auditEventTwoFactorEnableFailed,
			Disabled:               auditEventTwoFactorDisabled,
			VerifySuccess:          auditEventTwoFactorSuccess,
			VerifyFailure:          auditEventTwoFactorFailure,
			BackupCodeUsed:         auditEventBackupCodeUsed,
			BackupCodesRegenerated: auditEventBackupCodesRegenerated,
		},
		Errors: internalflows.TwoFactorErrors{
			EngineNotReady:   ErrEngineNotReady,
			AlreadyEnabled:   ErrTwoFactorAlreadyEnabled,
			NotPending:       ErrTwoFactorNotPending,
			NotEnabled:       ErrTwoFactorNotEnabled,
			Invalid:          ErrTwoFactorInvalid,
			RateLimited:      ErrTwoFactorRateLimited,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}

// checkActiveActor gates two-factor setup on an existing, active actor.
func (e *Engine) checkActiveActor(ctx context.Context, actorID string) error {
	actor, err := e.actors.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, permission.ErrActorNotFound) {
			return ErrActorNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !actor.IsActive {
		return ErrActorInactive
	}
	return nil
}

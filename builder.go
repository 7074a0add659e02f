package goAuthz

import (
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goAuthz/anomaly"
	"github.com/MrEthical07/goAuthz/broadcast"
	"github.com/MrEthical07/goAuthz/cache"
	"github.com/MrEthical07/goAuthz/hashing"
	internalflows "github.com/MrEthical07/goAuthz/internal/flows"
	"github.com/MrEthical07/goAuthz/internal/keylock"
	"github.com/MrEthical07/goAuthz/internal/limiters"
	"github.com/MrEthical07/goAuthz/internal/stores"
	"github.com/MrEthical07/goAuthz/jwt"
	"github.com/MrEthical07/goAuthz/mfa"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
	"github.com/MrEthical07/goAuthz/store/memory"
)

// Builder defines a public type used by goAuthz APIs.
//
// A Builder is single use: Build fails when called twice.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	actors      permission.ActorProvider
	permissions permission.Source

	sessionStore   session.Store
	twoFactorStore mfa.Store
	findingSink    anomaly.FindingSink
	auditSink      AuditSink
	transport      broadcast.Transport

	logger logr.Logger
	now    func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig stores a copy of cfg; later mutation of cfg does not affect the Builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects Redis-backed session, two-factor and limiter state for
// every store not supplied explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithActorProvider describes the withactorprovider operation and its observable behavior.
func (b *Builder) WithActorProvider(p permission.ActorProvider) *Builder {
	b.actors = p
	return b
}

// WithPermissionSource sets where role grants are resolved from, typically a
// static permission.Table or the relational store.
func (b *Builder) WithPermissionSource(src permission.Source) *Builder {
	b.permissions = src
	return b
}

func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessionStore = s
	return b
}

func (b *Builder) WithTwoFactorStore(s mfa.Store) *Builder {
	b.twoFactorStore = s
	return b
}

// WithFindingSink describes the withfindingsink operation and its observable behavior.
func (b *Builder) WithFindingSink(s anomaly.FindingSink) *Builder {
	b.findingSink = s
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTransport connects the engine's broadcaster to other instances. Without
// a transport updates reach only local subscribers.
func (b *Builder) WithTransport(t broadcast.Transport) *Builder {
	b.transport = t
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
func (b *Builder) WithLogger(l logr.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation fails or a
// required dependency is missing. Stores not supplied fall back to Redis
// when a client was given and to an in-process store otherwise.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.actors == nil {
		return nil, errors.New("actor provider required")
	}
	if b.permissions == nil {
		return nil, errors.New("permission source required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		log:         log,
		now:         now,
		actors:      b.actors,
		permissions: b.permissions,
		findings:    b.findingSink,
		locks:       keylock.New(),
	}

	// -------- STORES --------
	var local *memory.Store
	localStore := func() *memory.Store {
		if local == nil {
			local = memory.New()
		}
		return local
	}

	switch {
	case b.sessionStore != nil:
		engine.sessions = b.sessionStore
	case b.redis != nil:
		engine.sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	default:
		engine.sessions = localStore()
	}

	switch {
	case b.twoFactorStore != nil:
		engine.twoFactor = b.twoFactorStore
	case b.redis != nil:
		engine.twoFactor = stores.NewTwoFactorStore(b.redis, cfg.TOTP.RedisPrefix)
	default:
		engine.twoFactor = localStore()
	}

	if engine.findings == nil && local != nil {
		engine.findings = local
	}

	limiterCfg := limiters.TwoFactorLimiterConfig{
		MaxAttempts: cfg.TOTP.MaxAttempts,
		Cooldown:    cfg.TOTP.Cooldown,
		Prefix:      cfg.TOTP.LimiterPrefix,
	}
	if b.redis != nil {
		engine.limiter = limiters.NewTwoFactorLimiter(b.redis, limiterCfg)
	} else {
		engine.limiter = limiters.NewLocalTwoFactorLimiter(limiterCfg, now)
	}

	// -------- CACHE + BROADCAST --------
	engine.cache = cache.New(cache.Config{
		Capacity:      cfg.Cache.Capacity,
		DefaultTTL:    cfg.Cache.TTL,
		PromoteBuffer: cfg.Cache.PromoteBuffer,
		Now:           now,
	})
	engine.broadcaster = broadcast.New(b.transport, broadcast.Options{
		Origin: cfg.Broadcast.Origin,
		Logger: log.WithName("broadcast"),
		Now:    now,
	})
	engine.unsubscribeCache = engine.broadcaster.Subscribe(engine.applyUpdate)

	if cfg.Anomaly.Enabled {
		engine.detector = anomaly.NewDetector(anomaly.Config{
			ConcurrentThreshold: cfg.Anomaly.ConcurrentThreshold,
			DeviceThreshold:     cfg.Anomaly.DeviceThreshold,
			DeviceWindow:        cfg.Anomaly.DeviceWindow,
			SuppressRepeats:     cfg.Anomaly.SuppressRepeats,
		}, engine.cache, log.WithName("anomaly"))
	}

	// -------- SECRETS --------
	hasher, err := hashing.NewArgon2(hashing.Config{
		Memory:      cfg.BackupCodes.Memory,
		Time:        cfg.BackupCodes.Time,
		Parallelism: cfg.BackupCodes.Parallelism,
		KeyLength:   cfg.BackupCodes.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher
	engine.totp = newTOTPManager(cfg.TOTP)

	if cfg.Elevation.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Elevation.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Elevation.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Elevation.PrivateKey),
			PublicKey:     cloneBytes(cfg.Elevation.PublicKey),
			Issuer:        cfg.Elevation.Issuer,
			Audience:      cfg.Elevation.Audience,
			KeyID:         cfg.Elevation.KeyID,
			Leeway:        cfg.Elevation.Leeway,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.elevation = jm
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flows = internalflows.New(internalflows.Deps{
		Authorize: engine.authorizeFlowDeps(),
		Session:   engine.sessionFlowDeps(),
		TwoFactor: engine.twoFactorFlowDeps(),
	})

	b.built = true

	return engine, nil
}

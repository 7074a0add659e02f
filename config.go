package goAuthz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goAuthz/mfa"
)

// Config defines a public type used by goAuthz APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Cache         CacheConfig
	Session       SessionConfig
	DeviceBinding DeviceBindingConfig
	Anomaly       AnomalyConfig
	TOTP          TOTPConfig
	BackupCodes   BackupCodeHashConfig
	Elevation     ElevationConfig
	Broadcast     BroadcastConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig sizes the authorization decision cache.
type CacheConfig struct {
	Capacity int
	TTL      time.Duration
	// PromoteBuffer bounds queued recency promotions between structural
	// changes.
	PromoteBuffer int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goAuthz APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix         string
	DefaultTTL          time.Duration
	MaxTTL              time.Duration
	MaxSessionsPerActor int
}

// DeviceBindingConfig controls request attribute checks on validation.
type DeviceBindingConfig struct {
	DetectIPChange bool
}

// AnomalyConfig tunes the session anomaly heuristics.
type AnomalyConfig struct {
	Enabled             bool
	ConcurrentThreshold int
	DeviceThreshold     int
	DeviceWindow        time.Duration
	// SuppressRepeats reports a repeated finding only when its value grows.
	SuppressRepeats bool
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TOTPConfig defines a public type used by goAuthz APIs.
//
// MaxAttempts failed verifications within Cooldown rate-limit the actor.
type TOTPConfig struct {
	Issuer      string
	Digits      int
	Period      int
	Algorithm   string
	Skew        int
	MaxAttempts int
	Cooldown    time.Duration
	// BackupCodeCount must equal mfa.BackupCodeCount.
	BackupCodeCount  int
	BackupCodeLength int
	RedisPrefix      string
	LimiterPrefix    string
}

// BackupCodeHashConfig holds the Argon2id cost used for backup code hashes.
type BackupCodeHashConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// ElevationConfig defines a public type used by goAuthz APIs.
//
// Elevation is disabled when Enabled is false; ElevateSession then returns
// ErrElevationDisabled.
type ElevationConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
BROADCAST / AUDIT / METRICS
====================================
*/

// BroadcastConfig identifies this instance on the shared update channel.
type BroadcastConfig struct {
	// Origin is generated when empty.
	Origin string
}

// AuditConfig defines a public type used by goAuthz APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goAuthz APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig defines a public type used by goAuthz APIs.
type SecurityConfig struct {
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Capacity:      2048,
			TTL:           5 * time.Minute,
			PromoteBuffer: 256,
		},
		Session: SessionConfig{
			RedisPrefix:         "azs",
			DefaultTTL:          24 * time.Hour,
			MaxTTL:              7 * 24 * time.Hour,
			MaxSessionsPerActor: 5,
		},
		DeviceBinding: DeviceBindingConfig{
			DetectIPChange: true,
		},
		Anomaly: AnomalyConfig{
			Enabled:             true,
			ConcurrentThreshold: 3,
			DeviceThreshold:     2,
			DeviceWindow:        24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:           "goAuthz",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             1,
			MaxAttempts:      5,
			Cooldown:         time.Minute,
			BackupCodeCount:  mfa.BackupCodeCount,
			BackupCodeLength: 10,
			RedisPrefix:      "azm",
			LimiterPrefix:    "azf",
		},
		BackupCodes: BackupCodeHashConfig{
			Memory:      19 * 1024,
			Time:        2,
			Parallelism: 1,
			KeyLength:   32,
		},
		Elevation: ElevationConfig{
			Enabled:       false,
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "goAuthz",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Elevation.PrivateKey = cloneBytes(cfg.Elevation.PrivateKey)
	out.Elevation.PublicKey = cloneBytes(cfg.Elevation.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation fails.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Cache
	if c.Cache.Capacity <= 0 {
		return errors.New("Cache Capacity must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Cache.PromoteBuffer < 0 {
		return errors.New("Cache PromoteBuffer must be >= 0")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.DefaultTTL <= 0 {
		return errors.New("Session DefaultTTL must be > 0")
	}
	if c.Session.MaxTTL < c.Session.DefaultTTL {
		return errors.New("Session MaxTTL must be >= DefaultTTL")
	}
	if c.Session.MaxSessionsPerActor < 1 {
		return errors.New("Session MaxSessionsPerActor must be >= 1")
	}

	// Anomaly
	if c.Anomaly.ConcurrentThreshold < 0 || c.Anomaly.DeviceThreshold < 0 {
		return errors.New("Anomaly thresholds must be >= 0")
	}
	if c.Anomaly.DeviceWindow < 0 {
		return errors.New("Anomaly DeviceWindow must be >= 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.MaxAttempts <= 0 {
		return errors.New("TOTP MaxAttempts must be > 0")
	}
	if c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP Cooldown must be > 0")
	}
	if c.TOTP.BackupCodeCount != mfa.BackupCodeCount {
		return fmt.Errorf("TOTP BackupCodeCount must be %d", mfa.BackupCodeCount)
	}
	if c.TOTP.BackupCodeLength < 8 || c.TOTP.BackupCodeLength > 32 {
		return errors.New("TOTP BackupCodeLength must be between 8 and 32")
	}
	if c.TOTP.RedisPrefix == "" || c.TOTP.LimiterPrefix == "" {
		return errors.New("TOTP Redis prefixes must not be empty")
	}

	// Backup code hashing
	if c.BackupCodes.Memory < 8*1024 {
		return errors.New("BackupCodes Memory must be >= 8192 KB")
	}
	if c.BackupCodes.Time < 1 {
		return errors.New("BackupCodes Time must be >= 1")
	}
	if c.BackupCodes.Parallelism < 1 {
		return errors.New("BackupCodes Parallelism must be >= 1")
	}
	if c.BackupCodes.KeyLength < 16 {
		return errors.New("BackupCodes KeyLength must be >= 16")
	}

	// Elevation
	if c.Elevation.Enabled {
		if c.Elevation.TTL <= 0 {
			return errors.New("Elevation TTL must be > 0")
		}
		if c.Elevation.SigningMethod != "ed25519" && c.Elevation.SigningMethod != "hs256" {
			return errors.New("unsupported Elevation signing method")
		}
		if len(c.Elevation.PrivateKey) == 0 {
			return errors.New("Elevation requires PrivateKey")
		}
		if c.Elevation.SigningMethod == "ed25519" && len(c.Elevation.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if c.Elevation.Leeway < 0 || c.Elevation.Leeway > 2*time.Minute {
			return errors.New("Elevation Leeway must be between 0 and 2m")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Security.ProductionMode {
		if c.Session.MaxTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Session MaxTTL <= 30d")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.TOTP.Period > 60 {
			return errors.New("ProductionMode requires TOTP Period <= 60")
		}
		if c.BackupCodes.Memory < 19*1024 {
			return errors.New("ProductionMode requires BackupCodes Memory >= 19456 KB")
		}
		if c.Elevation.Enabled {
			if c.Elevation.TTL > 15*time.Minute {
				return errors.New("ProductionMode requires Elevation TTL <= 15m")
			}
			if c.Elevation.SigningMethod == "hs256" && len(c.Elevation.PrivateKey) < 32 {
				return errors.New("ProductionMode requires hs256 key length >= 256 bits")
			}
		}
	}

	return nil
}

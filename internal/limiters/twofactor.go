package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorCooldown    = time.Minute
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorLimiterConfig holds configurable thresholds for the two-factor limiters.
type TwoFactorLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
	Prefix      string
}

func (c TwoFactorLimiterConfig) normalized() TwoFactorLimiterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultTwoFactorMaxAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultTwoFactorCooldown
	}
	if c.Prefix == "" {
		c.Prefix = "azf"
	}
	return c
}

type TwoFactorLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewTwoFactorLimiter creates a Redis-backed limiter. Zero-value fields in cfg
// fall back to defaults (5 attempts / 60s).
func NewTwoFactorLimiter(redisClient redis.UniversalClient, cfg TwoFactorLimiterConfig) *TwoFactorLimiter {
	cfg = cfg.normalized()
	return &TwoFactorLimiter{
		redis:       redisClient,
		prefix:      cfg.Prefix,
		maxAttempts: int64(cfg.MaxAttempts),
		cooldown:    cfg.Cooldown,
	}
}

func (l *TwoFactorLimiter) key(actorID string) string {
	return l.prefix + ":att:" + actorID
}

func (l *TwoFactorLimiter) Check(ctx context.Context, actorID string) error {
	count, err := l.redis.Get(ctx, l.key(actorID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, actorID string) error {
	count, err := l.redis.Incr(ctx, l.key(actorID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(actorID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, actorID string) error {
	if err := l.redis.Del(ctx, l.key(actorID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}

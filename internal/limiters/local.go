package limiters

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localPruneThreshold = 4096

// LocalTwoFactorLimiter allows MaxAttempts failures per actor, refilled evenly
// over Cooldown. State lives in process memory only.
type LocalTwoFactorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewLocalTwoFactorLimiter creates an in-process limiter. now may be nil.
func NewLocalTwoFactorLimiter(cfg TwoFactorLimiterConfig, now func() time.Time) *LocalTwoFactorLimiter {
	cfg = cfg.normalized()
	if now == nil {
		now = time.Now
	}
	return &LocalTwoFactorLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(cfg.Cooldown / time.Duration(cfg.MaxAttempts)),
		burst:    cfg.MaxAttempts,
		now:      now,
	}
}

func (l *LocalTwoFactorLimiter) get(actorID string, create bool) *rate.Limiter {
	lim, ok := l.limiters[actorID]
	if !ok && create {
		if len(l.limiters) >= localPruneThreshold {
			l.pruneLocked()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[actorID] = lim
	}
	return lim
}

// pruneLocked drops buckets that have refilled completely.
func (l *LocalTwoFactorLimiter) pruneLocked() {
	now := l.now()
	for id, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}

func (l *LocalTwoFactorLimiter) Check(_ context.Context, actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.get(actorID, false)
	if lim == nil {
		return nil
	}
	if lim.TokensAt(l.now()) < 1 {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *LocalTwoFactorLimiter) RecordFailure(_ context.Context, actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.get(actorID, true)
	now := l.now()
	if !lim.AllowN(now, 1) || lim.TokensAt(now) < 1 {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *LocalTwoFactorLimiter) Reset(_ context.Context, actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, actorID)
	return nil
}

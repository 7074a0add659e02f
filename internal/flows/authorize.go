package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAuthz/cache"
	"github.com/MrEthical07/goAuthz/permission"
)

// DecisionCache is the subset of *cache.Cache the authorize flow needs.
type DecisionCache interface {
	Get(cache.Key) (bool, bool)
	Generation() uint64
	SetIfGeneration(cache.Key, bool, time.Duration, uint64) bool
}

type AuthorizeMetrics struct {
	CacheHit     int
	CacheMiss    int
	Allowed      int
	Denied       int
	UnknownActor int
}

type AuthorizeErrors struct {
	EngineNotReady   error
	StoreUnavailable error
}

type AuthorizeDeps struct {
	CacheTTL time.Duration

	Cache              DecisionCache
	GetActor           func(context.Context, string) (permission.Actor, error)
	PermissionsForRole func(context.Context, permission.Role) ([]permission.Permission, error)

	MetricInc func(int)

	Metrics AuthorizeMetrics
	Errors  AuthorizeErrors
}

// RunAuthorize answers from the cache when it can and otherwise evaluates
// and caches the decision. Unknown actors are denied without caching, and
// nothing is cached when a lookup fails or an invalidation lands while the
// decision is being resolved.
func RunAuthorize(ctx context.Context, actorID, resource, action, scope string, deps AuthorizeDeps) (bool, error) {
	normalizeAuthorizeDeps(&deps)
	if deps.Cache == nil || deps.GetActor == nil || deps.PermissionsForRole == nil {
		return false, deps.Errors.EngineNotReady
	}

	key := cache.Key{ActorID: actorID, Resource: resource, Action: action, Scope: scope}
	if allowed, ok := deps.Cache.Get(key); ok {
		deps.MetricInc(deps.Metrics.CacheHit)
		deps.countDecision(allowed)
		return allowed, nil
	}
	deps.MetricInc(deps.Metrics.CacheMiss)

	gen := deps.Cache.Generation()
	decision, known, err := resolveDecision(ctx, actorID, resource, action, scope, deps)
	if err != nil {
		return false, err
	}
	if !known {
		deps.MetricInc(deps.Metrics.UnknownActor)
		deps.countDecision(false)
		return false, nil
	}

	deps.Cache.SetIfGeneration(key, decision.Allowed, deps.CacheTTL, gen)
	deps.countDecision(decision.Allowed)
	return decision.Allowed, nil
}

// RunEvaluate explains a decision without touching the cache.
func RunEvaluate(ctx context.Context, actorID, resource, action, scope string, deps AuthorizeDeps) (permission.Decision, error) {
	normalizeAuthorizeDeps(&deps)
	if deps.GetActor == nil || deps.PermissionsForRole == nil {
		return permission.Decision{}, deps.Errors.EngineNotReady
	}
	decision, _, err := resolveDecision(ctx, actorID, resource, action, scope, deps)
	return decision, err
}

func resolveDecision(ctx context.Context, actorID, resource, action, scope string, deps AuthorizeDeps) (permission.Decision, bool, error) {
	actor, err := deps.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, permission.ErrActorNotFound) {
			return permission.Decision{Rule: permission.MatchNone}, false, nil
		}
		return permission.Decision{}, false, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if !actor.IsActive {
		return permission.Explain(actor, nil, resource, action, scope), true, nil
	}

	grants, err := deps.PermissionsForRole(ctx, actor.Role)
	if err != nil {
		return permission.Decision{}, false, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return permission.Explain(actor, grants, resource, action, scope), true, nil
}

func (d AuthorizeDeps) countDecision(allowed bool) {
	if allowed {
		d.MetricInc(d.Metrics.Allowed)
		return
	}
	d.MetricInc(d.Metrics.Denied)
}

func normalizeAuthorizeDeps(deps *AuthorizeDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
}

package goAuthz

import (
	"context"
	"time"

	"github.com/MrEthical07/goAuthz/permission"
)

// Authorize describes the authorize operation and its observable behavior.
//
// Authorize answers from the decision cache when it can. On a miss the actor
// and its role grants are loaded, evaluated and the decision cached before
// returning. Unknown actors are denied without caching. A lookup failure
// returns an error wrapping ErrStoreUnavailable and caches nothing.
func (e *Engine) Authorize(ctx context.Context, actorID, resource, action, scope string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
		}()
	}

	allowed, err := e.flows.Authorize(ctx, actorID, resource, action, scope)
	if err != nil {
		e.log.Error(err, "authorize lookup failed", "actor", actorID, "resource", resource, "action", action)
		return false, err
	}
	e.log.V(1).Info("authorize", "actor", actorID, "resource", resource, "action", action, "scope", scope, "allowed", allowed)
	return allowed, nil
}

// Evaluate reports which rule decides a request without reading or writing
// the cache. It is meant for diagnostics and the evaluate command.
func (e *Engine) Evaluate(ctx context.Context, actorID, resource, action, scope string) (permission.Decision, error) {
	if err := e.ready(); err != nil {
		return permission.Decision{}, err
	}
	return e.flows.Evaluate(ctx, actorID, resource, action, scope)
}

// Can is Authorize for the actor carried by a session resolved through
// middleware. It denies when ctx carries no session.
func (e *Engine) Can(ctx context.Context, resource, action, scope string) (bool, error) {
	info, ok := SessionFromContext(ctx)
	if !ok || info == nil {
		return false, nil
	}
	return e.Authorize(ctx, info.ActorID, resource, action, scope)
}

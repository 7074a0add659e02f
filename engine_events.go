package goAuthz

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goAuthz/broadcast"
	"github.com/MrEthical07/goAuthz/cache"
)

// PublishPermissionUpdate describes the publishpermissionupdate operation and its observable behavior.
//
// Local subscribers, including this engine's cache, have handled u before
// PublishPermissionUpdate returns. A transport failure is reported after
// local delivery as an error wrapping ErrBroadcastUnavailable.
func (e *Engine) PublishPermissionUpdate(ctx context.Context, u broadcast.Update) error {
	if err := e.ready(); err != nil {
		return err
	}
	err := e.broadcaster.Publish(ctx, u)
	switch {
	case err == nil:
		e.metricInc(MetricUpdatePublished)
		return nil
	case errors.Is(err, broadcast.ErrTransport):
		e.metricInc(MetricUpdatePublished)
		e.log.Error(err, "publish permission update", "type", string(u.Type))
		return fmt.Errorf("%w: %v", ErrBroadcastUnavailable, err)
	default:
		return err
	}
}

// Subscribe registers h for every update this engine publishes or receives
// from other instances. The returned function removes h.
func (e *Engine) Subscribe(h broadcast.Handler) (unsubscribe func()) {
	if e == nil || e.broadcaster == nil {
		return func() {}
	}
	return e.broadcaster.Subscribe(h)
}

// Run consumes updates from other instances until ctx is done. Without a
// transport it blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.broadcaster.Run(ctx)
}

// applyUpdate keeps the decision cache consistent with external mutations.
func (e *Engine) applyUpdate(ctx context.Context, u broadcast.Update) {
	removed := 0
	switch u.Type {
	case broadcast.RoleChanged, broadcast.ActorDeactivated:
		removed = e.cache.InvalidateActor(u.ActorID)
	case broadcast.PermissionUpdated:
		if u.Resource == "" {
			removed = e.clearCache()
			break
		}
		n, err := e.cache.Invalidate(cache.ResourcePattern(u.Resource))
		if err != nil {
			e.log.Error(err, "invalidate resource pattern; clearing cache", "resource", u.Resource)
			removed = e.clearCache()
			break
		}
		removed = n
	case broadcast.CacheInvalidated:
		if u.ActorID != "" {
			removed = e.cache.InvalidateActor(u.ActorID)
			break
		}
		removed = e.clearCache()
	default:
		return
	}

	e.metricInc(MetricUpdateApplied)
	e.log.V(1).Info("permission update applied", "type", string(u.Type), "origin", u.Origin, "removed", removed)
	e.emitAudit(ctx, auditEventPermissionUpdateApplied, true, u.ActorID, "", nil, func() map[string]string {
		meta := map[string]string{
			"type":    string(u.Type),
			"origin":  u.Origin,
			"removed": strconv.Itoa(removed),
		}
		if u.Resource != "" {
			meta["resource"] = u.Resource
		}
		return meta
	})
}

func (e *Engine) clearCache() int {
	n := e.cache.Len()
	e.cache.Clear()
	return n
}

package goAuthz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthz/broadcast"
	"github.com/MrEthical07/goAuthz/permission"
)

func TestAuthorizeEditorPermissionUpdateScenario(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	allowed, err := te.Authorize(ctx, "alice", "products", "create", "")
	if err != nil || !allowed {
		t.Fatalf("expected editor to create products: allowed=%v err=%v", allowed, err)
	}
	allowed, err = te.Authorize(ctx, "alice", "products", "create", "")
	if err != nil || !allowed {
		t.Fatalf("expected cached allow: allowed=%v err=%v", allowed, err)
	}
	if stats := te.CacheStats(); stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected one hit and one miss, got %+v", stats)
	}

	if allowed, _ := te.Authorize(ctx, "alice", "products", "delete", ""); allowed {
		t.Fatal("expected editor to be denied products:delete")
	}

	te.store.SetRolePermissions(permission.RoleEditor, permission.MustParsePermissions("products:read"))
	if err := te.PublishPermissionUpdate(ctx, broadcast.Update{
		Type:     broadcast.PermissionUpdated,
		Resource: "products",
	}); err != nil {
		t.Fatalf("PublishPermissionUpdate failed: %v", err)
	}

	misses := te.CacheStats().Misses
	allowed, err = te.Authorize(ctx, "alice", "products", "create", "")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if allowed {
		t.Fatal("expected revoked grant to deny after update")
	}
	if got := te.CacheStats().Misses; got != misses+1 {
		t.Fatalf("expected a miss after invalidation, misses %d -> %d", misses, got)
	}

	hits := te.CacheStats().Hits
	if allowed, _ := te.Authorize(ctx, "alice", "products", "create", ""); allowed {
		t.Fatal("expected cached deny")
	}
	if got := te.CacheStats().Hits; got != hits+1 {
		t.Fatalf("expected the new decision to be served from cache, hits %d -> %d", hits, got)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricUpdatePublished] != 1 || snap.Counters[MetricUpdateApplied] != 1 {
		t.Fatalf("expected one published and applied update, got %+v", snap.Counters)
	}
}

func TestAuthorizeWildcardGrants(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	cases := []struct {
		actor, resource, action, scope string
		want                           bool
	}{
		{"bob", "products", "create", "", true},
		{"bob", "products", "read", "", true},
		{"bob", "categories", "delete", "", true},
		{"bob", "users", "read", "", false},
		{"bob", "reports", "export", "finance", true},
		{"bob", "reports", "export", "hr", false},
		{"carol", "products", "read", "", true},
		{"carol", "products", "create", "", false},
		{"alice", "categories", "read", "", false},
	}
	for _, tc := range cases {
		got, err := te.Authorize(ctx, tc.actor, tc.resource, tc.action, tc.scope)
		if err != nil {
			t.Fatalf("Authorize(%s %s:%s:%s) failed: %v", tc.actor, tc.resource, tc.action, tc.scope, err)
		}
		if got != tc.want {
			t.Fatalf("Authorize(%s %s:%s:%s) = %v, want %v", tc.actor, tc.resource, tc.action, tc.scope, got, tc.want)
		}
	}
}

func TestAuthorizeRoleHierarchyDoesNotInherit(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	if !permission.RoleAdmin.AtLeast(permission.RoleViewer) {
		t.Fatal("expected admin to rank above viewer")
	}
	if allowed, _ := te.Authorize(ctx, "carol", "categories", "read", ""); !allowed {
		t.Fatal("expected viewer to read categories")
	}

	te.store.SetRolePermissions(permission.RoleAdmin, permission.MustParsePermissions("reports:*"))
	if allowed, _ := te.Authorize(ctx, "bob", "categories", "read", ""); allowed {
		t.Fatal("expected admin without the grant to be denied despite outranking viewer")
	}
}

func TestAuthorizeInactiveActorDenied(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	allowed, err := te.Authorize(ctx, "dave", "products", "read", "")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if allowed {
		t.Fatal("expected inactive actor to be denied")
	}

	decision, err := te.Evaluate(ctx, "dave", "products", "read", "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision.Allowed || decision.Rule != permission.MatchInactive {
		t.Fatalf("expected inactive rule, got %+v", decision)
	}
}

func TestAuthorizeUnknownActorIsNotCached(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	allowed, err := te.Authorize(ctx, "erin", "products", "read", "")
	if err != nil || allowed {
		t.Fatalf("expected unknown actor deny without error: allowed=%v err=%v", allowed, err)
	}
	if n := te.cache.Len(); n != 0 {
		t.Fatalf("expected no cached decision for unknown actor, got %d entries", n)
	}
	if got := te.MetricsSnapshot().Counters[MetricUnknownActor]; got != 1 {
		t.Fatalf("expected unknown actor metric 1, got %d", got)
	}

	te.store.PutActor(permission.Actor{ID: "erin", Role: permission.RoleViewer, IsActive: true})
	allowed, err = te.Authorize(ctx, "erin", "products", "read", "")
	if err != nil || !allowed {
		t.Fatalf("expected newly provisioned actor to be allowed: allowed=%v err=%v", allowed, err)
	}
}

// updatingSource runs onLookup once, after the first lookup has read its
// grants but before they are returned.
type updatingSource struct {
	permission.Source
	onLookup func()
	done     bool
}

func (u *updatingSource) PermissionsForRole(ctx context.Context, role permission.Role) ([]permission.Permission, error) {
	grants, err := u.Source.PermissionsForRole(ctx, role)
	if !u.done && u.onLookup != nil {
		u.done = true
		u.onLookup()
	}
	return grants, err
}

func TestAuthorizeUpdateDuringLookupIsNotLost(t *testing.T) {
	src := &updatingSource{}
	te := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithPermissionSource(src)
	})
	ctx := context.Background()
	src.Source = te.store
	src.onLookup = func() {
		te.store.SetRolePermissions(permission.RoleEditor, permission.MustParsePermissions("products:read"))
		if err := te.PublishPermissionUpdate(ctx, broadcast.Update{
			Type:     broadcast.PermissionUpdated,
			Resource: "products",
		}); err != nil {
			t.Errorf("PublishPermissionUpdate failed: %v", err)
		}
	}

	allowed, err := te.Authorize(ctx, "alice", "products", "update", "")
	if err != nil || !allowed {
		t.Fatalf("expected the in-flight decision to allow: allowed=%v err=%v", allowed, err)
	}
	allowed, err = te.Authorize(ctx, "alice", "products", "update", "")
	if err != nil || allowed {
		t.Fatalf("expected the update to force a fresh deny: allowed=%v err=%v", allowed, err)
	}
	if stats := te.CacheStats(); stats.Hits != 0 || stats.Misses != 2 {
		t.Fatalf("expected two misses and no hits, got %+v", stats)
	}
}

func TestAuthorizeStoreFailureIsNotCached(t *testing.T) {
	src := &flakySource{Source: seedTestStore()}
	te := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithPermissionSource(src)
	})
	ctx := context.Background()

	src.down.Store(true)
	allowed, err := te.Authorize(ctx, "alice", "products", "read", "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if allowed {
		t.Fatal("expected deny on store failure")
	}
	if n := te.cache.Len(); n != 0 {
		t.Fatalf("expected nothing cached after failure, got %d entries", n)
	}

	src.down.Store(false)
	allowed, err = te.Authorize(ctx, "alice", "products", "read", "")
	if err != nil || !allowed {
		t.Fatalf("expected recovery after store returns: allowed=%v err=%v", allowed, err)
	}
	if calls := src.calls.Load(); calls != 2 {
		t.Fatalf("expected two source lookups, got %d", calls)
	}
}

func TestAuthorizeCacheTTLBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.TTL = time.Minute
	src := &flakySource{Source: seedTestStore()}
	te := newTestEngine(t, cfg, func(b *Builder) {
		b.WithPermissionSource(src)
	})
	ctx := context.Background()

	_, _ = te.Authorize(ctx, "alice", "products", "read", "")
	te.clock.Advance(time.Minute - time.Nanosecond)
	_, _ = te.Authorize(ctx, "alice", "products", "read", "")
	if calls := src.calls.Load(); calls != 1 {
		t.Fatalf("expected hit just before TTL, got %d lookups", calls)
	}

	te.clock.Advance(time.Nanosecond)
	_, _ = te.Authorize(ctx, "alice", "products", "read", "")
	if calls := src.calls.Load(); calls != 2 {
		t.Fatalf("expected miss at TTL, got %d lookups", calls)
	}
}

func TestAuthorizeUpdatesInvalidateByScope(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	_, _ = te.Authorize(ctx, "alice", "products", "read", "")
	_, _ = te.Authorize(ctx, "alice", "categories", "read", "")
	_, _ = te.Authorize(ctx, "bob", "products", "read", "")
	_, _ = te.Authorize(ctx, "carol", "products", "read", "")
	if n := te.cache.Len(); n != 4 {
		t.Fatalf("expected 4 cached decisions, got %d", n)
	}

	if err := te.PublishPermissionUpdate(ctx, broadcast.Update{Type: broadcast.RoleChanged, ActorID: "alice"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if n := te.cache.Len(); n != 2 {
		t.Fatalf("expected only alice's entries removed, got %d left", n)
	}

	if err := te.PublishPermissionUpdate(ctx, broadcast.Update{Type: broadcast.ActorDeactivated, ActorID: "bob"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if n := te.cache.Len(); n != 1 {
		t.Fatalf("expected bob's entry removed, got %d left", n)
	}

	if err := te.PublishPermissionUpdate(ctx, broadcast.Update{Type: broadcast.CacheInvalidated}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if n := te.cache.Len(); n != 0 {
		t.Fatalf("expected cache cleared, got %d left", n)
	}
}

func TestPublishPermissionUpdateRejectsInvalid(t *testing.T) {
	te := newTestEngine(t, testConfig())

	err := te.PublishPermissionUpdate(context.Background(), broadcast.Update{Type: "RENAMED"})
	if !errors.Is(err, broadcast.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestSubscribeReceivesLocalUpdates(t *testing.T) {
	te := newTestEngine(t, testConfig())

	got := make(chan broadcast.Update, 1)
	unsubscribe := te.Subscribe(func(_ context.Context, u broadcast.Update) {
		got <- u
	})
	defer unsubscribe()

	if err := te.PublishPermissionUpdate(context.Background(), broadcast.Update{Type: broadcast.RoleChanged, ActorID: "alice"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case u := <-got:
		if u.ID == "" || u.Origin != "test-instance" {
			t.Fatalf("expected stamped update, got %+v", u)
		}
	default:
		t.Fatal("expected synchronous local delivery")
	}
}

func TestCanUsesSessionFromContext(t *testing.T) {
	te := newTestEngine(t, testConfig())

	if allowed, _ := te.Can(context.Background(), "products", "read", ""); allowed {
		t.Fatal("expected deny without a session")
	}
	ctx := WithSession(context.Background(), &SessionInfo{ID: "s1", ActorID: "carol"})
	if allowed, err := te.Can(ctx, "products", "read", ""); err != nil || !allowed {
		t.Fatalf("expected session actor to be allowed: allowed=%v err=%v", allowed, err)
	}
}

func TestAuthorizeOnNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Authorize(context.Background(), "alice", "products", "read", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

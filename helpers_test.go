package goAuthz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.BackupCodes.Memory = 8 * 1024
	cfg.BackupCodes.Time = 1
	cfg.Metrics.Enabled = true
	cfg.Broadcast.Origin = "test-instance"
	return cfg
}

var testElevationKey = []byte("0123456789abcdef0123456789abcdef")

func elevationTestConfig() Config {
	cfg := testConfig()
	cfg.Elevation.Enabled = true
	cfg.Elevation.SigningMethod = "hs256"
	cfg.Elevation.PrivateKey = testElevationKey
	return cfg
}

// seedTestStore registers the roles used across engine tests and the actors
// alice (editor), bob (admin), carol (viewer) and dave (inactive editor).
func seedTestStore() *memory.Store {
	store := memory.New()
	store.SetRolePermissions(permission.RoleViewer, permission.MustParsePermissions("products:read", "categories:read"))
	store.SetRolePermissions(permission.RoleEditor, permission.MustParsePermissions("products:create", "products:read", "products:update"))
	store.SetRolePermissions(permission.RoleAdmin, permission.MustParsePermissions("products:*", "categories:*", "reports:export:finance"))
	store.SetRolePermissions(permission.RoleSuperAdmin, permission.MustParsePermissions("*"))

	store.PutActor(permission.Actor{ID: "alice", Role: permission.RoleEditor, IsActive: true})
	store.PutActor(permission.Actor{ID: "bob", Role: permission.RoleAdmin, IsActive: true})
	store.PutActor(permission.Actor{ID: "carol", Role: permission.RoleViewer, IsActive: true})
	store.PutActor(permission.Actor{ID: "dave", Role: permission.RoleEditor, IsActive: false})
	return store
}

type testEngine struct {
	*Engine
	store *memory.Store
	clock *testClock
}

func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) *testEngine {
	t.Helper()

	store := seedTestStore()
	clock := newTestClock()
	b := New().
		WithConfig(cfg).
		WithClock(clock.Now).
		WithActorProvider(store).
		WithPermissionSource(store).
		WithSessionStore(store).
		WithTwoFactorStore(store).
		WithFindingSink(store)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, store: store, clock: clock}
}

func (te *testEngine) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := te.totp.CodeAt(secret, te.clock.Now())
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	return code
}

// enableTwoFactor runs setup and confirmation for actorID and returns the
// secret and the initial backup codes. The clock then moves one TOTP step
// so the confirming code's step is not reused.
func (te *testEngine) enableTwoFactor(t *testing.T, actorID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := te.GenerateTwoFactorSetup(ctx, actorID)
	if err != nil {
		t.Fatalf("GenerateTwoFactorSetup failed: %v", err)
	}
	ok, err := te.EnableTwoFactor(ctx, actorID, te.totpCode(t, setup.Secret))
	if err != nil || !ok {
		t.Fatalf("EnableTwoFactor failed: ok=%v err=%v", ok, err)
	}
	te.clock.Advance(30 * time.Second)
	return setup.Secret, setup.BackupCodes
}

var errBackendDown = errors.New("backend down")

// flakySource fails every lookup while down is set.
type flakySource struct {
	permission.Source
	down  atomic.Bool
	calls atomic.Int64
}

func (f *flakySource) PermissionsForRole(ctx context.Context, role permission.Role) ([]permission.Permission, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errBackendDown
	}
	return f.Source.PermissionsForRole(ctx, role)
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// waitFor drains events until one of type eventType arrives.
func (s *captureSink) waitFor(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected audit event %q", eventType)
			return AuditEvent{}
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	goAuthz "github.com/MrEthical07/goAuthz"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
	"github.com/MrEthical07/goAuthz/store/memory"
)

func newMiddlewareEngine(t *testing.T) (*goAuthz.Engine, *memory.Store) {
	t.Helper()

	store := memory.New()
	store.SetRolePermissions(permission.RoleViewer, permission.MustParsePermissions("products:read"))
	store.SetRolePermissions(permission.RoleAdmin, permission.MustParsePermissions("products:*", "reports:export:finance"))
	store.PutActor(permission.Actor{ID: "carol", Role: permission.RoleViewer, IsActive: true})
	store.PutActor(permission.Actor{ID: "bob", Role: permission.RoleAdmin, IsActive: true})

	cfg := goAuthz.DefaultConfig()
	cfg.BackupCodes.Memory = 8 * 1024
	cfg.BackupCodes.Time = 1

	engine, err := goAuthz.New().
		WithConfig(cfg).
		WithActorProvider(store).
		WithPermissionSource(store).
		WithSessionStore(store).
		WithTwoFactorStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

func createToken(t *testing.T, engine *goAuthz.Engine, actorID string) string {
	t.Helper()
	sess, err := engine.CreateSession(context.Background(), actorID, goAuthz.SessionOptions{IPAddress: "192.0.2.10"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return sess.Token
}

func okHandler(seen **goAuthz.SessionInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen, _ = goAuthz.SessionFromContext(r.Context())
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardAttachesSession(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	token := createToken(t, engine, "carol")

	var seen *goAuthz.SessionInfo
	h := Guard(engine)(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.RemoteAddr = "192.0.2.10:51000"
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.ActorID != "carol" {
		t.Fatalf("expected carol's session in context, got %+v", seen)
	}
}

func TestGuardRejectsMissingAndUnknownTokens(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	h := Guard(engine)(okHandler(nil))

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "unknown", header: "Bearer not-a-session"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestGuardCookieFallback(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	token := createToken(t, engine, "bob")
	h := Guard(engine, WithCookie("goauthz_session"))(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "goauthz_session", Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected cookie session to pass, got %d", rec.Code)
	}
}

func TestGuardTerminatedSession(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	sess, err := engine.CreateSession(context.Background(), "carol", goAuthz.SessionOptions{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := engine.TerminateSession(context.Background(), sess.ID, session.ReasonRevoked); err != nil {
		t.Fatalf("TerminateSession failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	Guard(engine)(okHandler(nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for terminated session, got %d", rec.Code)
	}
}

type failingValidator struct{}

func (failingValidator) ValidateSession(context.Context, string, string) (*session.Session, error) {
	return nil, errors.Join(goAuthz.ErrStoreUnavailable, errors.New("redis down"))
}

func TestGuardStoreFailureIsUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	Guard(failingValidator{})(okHandler(nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestClientIPForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(req, ""); got != "10.0.0.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
	if got := clientIP(req, "X-Forwarded-For"); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded entry, got %q", got)
	}
}

func TestRequirePermission(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	viewer := createToken(t, engine, "carol")
	admin := createToken(t, engine, "bob")

	scope := func(r *http.Request) string { return r.URL.Query().Get("scope") }

	tests := []struct {
		name     string
		token    string
		resource string
		action   string
		target   string
		want     int
	}{
		{name: "viewer read", token: viewer, resource: "products", action: "read", target: "/", want: http.StatusNoContent},
		{name: "viewer create", token: viewer, resource: "products", action: "create", target: "/", want: http.StatusForbidden},
		{name: "admin wildcard", token: admin, resource: "products", action: "delete", target: "/", want: http.StatusNoContent},
		{name: "admin scoped", token: admin, resource: "reports", action: "export", target: "/?scope=finance", want: http.StatusNoContent},
		{name: "admin wrong scope", token: admin, resource: "reports", action: "export", target: "/?scope=hr", want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Guard(engine)(RequirePermission(engine, tc.resource, tc.action, scope)(okHandler(nil)))
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequirePermissionWithoutGuard(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	rec := httptest.NewRecorder()
	RequirePermission(engine, "products", "read", nil)(okHandler(nil)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

type fakeElevation struct {
	gotElevation string
	gotSession   string
	err          error
}

func (f *fakeElevation) ValidateElevation(_ context.Context, elevationToken, sessionToken string) (*goAuthz.SessionInfo, error) {
	f.gotElevation = elevationToken
	f.gotSession = sessionToken
	if f.err != nil {
		return nil, f.err
	}
	return &goAuthz.SessionInfo{ActorID: "bob"}, nil
}

func TestRequireElevation(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	token := createToken(t, engine, "bob")

	tests := []struct {
		name      string
		elevation string
		err       error
		want      int
	}{
		{name: "valid", elevation: "elev", want: http.StatusNoContent},
		{name: "missing header", elevation: "", want: http.StatusForbidden},
		{name: "invalid", elevation: "elev", err: goAuthz.ErrElevationInvalid, want: http.StatusForbidden},
		{name: "disabled", elevation: "elev", err: goAuthz.ErrElevationDisabled, want: http.StatusForbidden},
		{name: "store down", elevation: "elev", err: goAuthz.ErrStoreUnavailable, want: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeElevation{err: tc.err}
			h := Guard(engine)(RequireElevation(fake)(okHandler(nil)))

			req := httptest.NewRequest(http.MethodPost, "/danger", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			if tc.elevation != "" {
				req.Header.Set(ElevationHeader, tc.elevation)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.elevation != "" && fake.gotSession != token {
				t.Fatal("expected elevation to be checked against the guarded session token")
			}
		})
	}
}

func TestRequireElevationAgainstDisabledEngine(t *testing.T) {
	engine, _ := newMiddlewareEngine(t)
	token := createToken(t, engine, "bob")

	h := Guard(engine)(RequireElevation(engine)(okHandler(nil)))
	req := httptest.NewRequest(http.MethodPost, "/danger", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(ElevationHeader, "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with elevation disabled, got %d", rec.Code)
	}
}

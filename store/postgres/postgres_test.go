package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/MrEthical07/goAuthz/anomaly"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
)

func newPostgresTest(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return New(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func q(s string) string { return regexp.QuoteMeta(s) }

var now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestGetActor(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("SELECT role, is_active FROM actors WHERE id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "is_active"}).AddRow("editor", true))
	mock.ExpectQuery(q("SELECT role, is_active FROM actors")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	a, err := store.GetActor(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get actor: %v", err)
	}
	if a.Role != permission.RoleEditor || !a.IsActive || a.ID != "a1" {
		t.Fatalf("unexpected actor %+v", a)
	}
	if _, err := store.GetActor(context.Background(), "ghost"); !errors.Is(err, permission.ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
}

func TestPermissionsForRole(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("SELECT permission FROM role_permissions WHERE role = $1")).
		WithArgs("editor").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).AddRow("orders:read:own").AddRow("products:*"))

	grants, err := store.PermissionsForRole(context.Background(), permission.RoleEditor)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if len(grants) != 2 || grants[0].Scope != "own" || !grants[1].IsResourceWildcard() {
		t.Fatalf("unexpected grants %+v", grants)
	}
}

func TestPermissionsForRoleRejectsMalformedRow(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("FROM role_permissions")).
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).AddRow("::"))

	if _, err := store.PermissionsForRole(context.Background(), permission.RoleViewer); !errors.Is(err, permission.ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
}

func testSession() *session.Session {
	return &session.Session{
		ID:        "s3",
		ActorID:   "a1",
		TokenHash: sha256.Sum256([]byte("tok")),
		Device:    session.Device{Type: session.DeviceDesktop, Browser: "Firefox", OS: "Linux"},
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCreateWithLimitEvictsOldestInTransaction(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT id FROM sessions WHERE active = $1 AND actor_id = $2 AND expires_at > $3 ORDER BY created_at ASC, id ASC")).
		WithArgs(true, "a1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s0").AddRow("s1").AddRow("s2"))
	mock.ExpectExec(q("UPDATE sessions SET active = $1, terminated_reason = $2 WHERE id IN ($3)")).
		WithArgs(false, session.ReasonSessionLimit, "s0").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	evicted, err := store.CreateWithLimit(context.Background(), testSession(), 3, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "s0" {
		t.Fatalf("expected s0 evicted, got %v", evicted)
	}
}

func TestCreateWithLimitRollsBackOnInsertFailure(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(q("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT id FROM sessions")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(q("INSERT INTO sessions")).WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	if _, err := store.CreateWithLimit(context.Background(), testSession(), 3, now); err == nil {
		t.Fatal("expected insert failure")
	}
}

func TestGetByTokenHashNotFound(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("FROM sessions WHERE token_hash = $1")).WillReturnError(sql.ErrNoRows)
	if _, err := store.GetByTokenHash(context.Background(), sha256.Sum256([]byte("x"))); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetScansSession(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	hash := sha256.Sum256([]byte("tok"))
	mock.ExpectQuery(q("FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			"s1", "a1", hash[:], "10.0.0.1", "ua", "mobile", "Safari", "iOS", "fp",
			true, "", now, now.Add(time.Hour),
		))

	sess, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.TokenHash != hash || sess.Device.Type != session.DeviceMobile || !sess.Live(now) {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestDeactivateReportsChange(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectExec(q("UPDATE sessions SET active = $1, terminated_reason = $2 WHERE active = $3 AND id = $4")).
		WithArgs(false, session.ReasonLogout, true, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE sessions SET active")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := store.Deactivate(context.Background(), "s1", session.ReasonLogout)
	if err != nil || !changed {
		t.Fatalf("first: changed=%v err=%v", changed, err)
	}
	changed, err = store.Deactivate(context.Background(), "s1", session.ReasonLogout)
	if err != nil || changed {
		t.Fatalf("second: changed=%v err=%v", changed, err)
	}
}

func TestDeactivateAllReturnsIDs(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("UPDATE sessions SET active = $1, terminated_reason = $2 WHERE active = $3 AND actor_id = $4 AND id <> $5 RETURNING id")).
		WithArgs(false, session.ReasonRevoked, true, "a1", "keep").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1").AddRow("s2"))

	ids, err := store.DeactivateAll(context.Background(), "a1", "keep", session.ReasonRevoked)
	if err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}

func TestConsumeBackupCodeOnce(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	stmt := q("UPDATE backup_codes SET used = $1, used_at = $2 WHERE actor_id = $3 AND code_hash = $4 AND used = $5")
	mock.ExpectExec(stmt).WithArgs(true, now, "a1", "h", false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs(true, now, "a1", "h", false).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ConsumeBackupCode(context.Background(), "a1", "h", now)
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	ok, err = store.ConsumeBackupCode(context.Background(), "a1", "h", now)
	if err != nil || ok {
		t.Fatalf("second consume: ok=%v err=%v", ok, err)
	}
}

func TestAdvanceTOTPCounterRejectsReplay(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	stmt := q("UPDATE two_factor_secrets SET last_used_counter = $1 WHERE actor_id = $2 AND last_used_counter < $3")
	mock.ExpectExec(stmt).WithArgs(int64(42), "a1", int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs(int64(42), "a1", int64(42)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.AdvanceTOTPCounter(context.Background(), "a1", 42)
	if err != nil || !ok {
		t.Fatalf("first advance: ok=%v err=%v", ok, err)
	}
	ok, err = store.AdvanceTOTPCounter(context.Background(), "a1", 42)
	if err != nil || ok {
		t.Fatalf("replayed advance: ok=%v err=%v", ok, err)
	}
}

func TestGetTwoFactorScansCounter(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	rows := sqlmock.NewRows([]string{"secret", "enabled", "created_at", "enabled_at", "last_used_counter"}).
		AddRow("S", true, now, now, int64(77))
	mock.ExpectQuery(q("SELECT secret, enabled, created_at, enabled_at, last_used_counter FROM two_factor_secrets WHERE actor_id = $1")).
		WithArgs("a1").
		WillReturnRows(rows)

	sec, err := store.GetTwoFactor(context.Background(), "a1")
	if err != nil || sec == nil || !sec.Enabled || sec.LastUsedCounter != 77 {
		t.Fatalf("unexpected secret %+v err=%v", sec, err)
	}
}

func TestGetTwoFactorMissing(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectQuery(q("FROM two_factor_secrets WHERE actor_id = $1")).WillReturnError(sql.ErrNoRows)
	sec, err := store.GetTwoFactor(context.Background(), "a1")
	if err != nil || sec != nil {
		t.Fatalf("expected nil, nil; got %+v %v", sec, err)
	}
}

func TestDeleteTwoFactorClearsCodesAndSecret(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM backup_codes WHERE actor_id = $1")).WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(q("DELETE FROM two_factor_secrets WHERE actor_id = $1")).WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteTwoFactor(context.Background(), "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestRecordFinding(t *testing.T) {
	store, mock, done := newPostgresTest(t)
	defer done()

	mock.ExpectExec(q("INSERT INTO security_findings (type,severity,actor_id,session_id,details,detected_at)")).
		WithArgs(anomaly.TypeConcurrentSessions, "medium", "a1", "s1", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordFinding(context.Background(), anomaly.Finding{
		Type:       anomaly.TypeConcurrentSessions,
		Severity:   anomaly.SeverityMedium,
		ActorID:    "a1",
		SessionID:  "s1",
		Details:    map[string]string{"active_sessions": "4"},
		DetectedAt: now,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goAuthz/session"
)

var sessionColumns = []string{
	"id", "actor_id", "token_hash", "ip", "user_agent",
	"device_type", "browser", "os", "fingerprint",
	"active", "terminated_reason", "created_at", "expires_at",
}

// CreateWithLimit implements session.Store. The actor's rows are serialized
// by a transaction-scoped advisory lock keyed on the actor ID.
func (s *Store) CreateWithLimit(ctx context.Context, sess *session.Session, limit int, now time.Time) ([]string, error) {
	if limit < 1 {
		return nil, session.ErrInvalidLimit
	}

	var evicted []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", sess.ActorID); err != nil {
			return fmt.Errorf("lock actor sessions: %w", err)
		}

		stmt, args, err := s.builder.Select("id").
			From("sessions").
			Where(squirrel.Eq{"actor_id": sess.ActorID, "active": true}).
			Where(squirrel.Gt{"expires_at": now}).
			OrderBy("created_at ASC", "id ASC").
			ToSql()
		if err != nil {
			return fmt.Errorf("build select live sessions sql: %w", err)
		}
		live, err := queryIDs(ctx, tx, stmt, args...)
		if err != nil {
			return fmt.Errorf("select live sessions: %w", err)
		}

		if excess := len(live) - (limit - 1); excess > 0 {
			evicted = live[:excess]
			stmt, args, err := s.builder.Update("sessions").
				Set("active", false).
				Set("terminated_reason", session.ReasonSessionLimit).
				Where(squirrel.Eq{"id": evicted}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build evict sessions sql: %w", err)
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("evict sessions: %w", err)
			}
		}

		stmt, args, err = s.builder.Insert("sessions").
			Columns(sessionColumns...).
			Values(
				sess.ID, sess.ActorID, sess.TokenHash[:], sess.IPAddress, sess.UserAgent,
				string(sess.Device.Type), sess.Device.Browser, sess.Device.OS, sess.Fingerprint,
				sess.Active, sess.TerminatedReason, sess.CreatedAt, sess.ExpiresAt,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert session sql: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByTokenHash implements session.Store.
func (s *Store) GetByTokenHash(ctx context.Context, hash [32]byte) (*session.Session, error) {
	return s.getOne(ctx, squirrel.Eq{"token_hash": hash[:]})
}

func (s *Store) getOne(ctx context.Context, where squirrel.Eq) (*session.Session, error) {
	stmt, args, err := s.builder.Select(sessionColumns...).
		From("sessions").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

// Deactivate implements session.Store.
func (s *Store) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	stmt, args, err := s.builder.Update("sessions").
		Set("active", false).
		Set("terminated_reason", reason).
		Where(squirrel.Eq{"id": id, "active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build deactivate session sql: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return n == 1, nil
}

// DeactivateAll implements session.Store.
func (s *Store) DeactivateAll(ctx context.Context, actorID, exceptID, reason string) ([]string, error) {
	q := s.builder.Update("sessions").
		Set("active", false).
		Set("terminated_reason", reason).
		Where(squirrel.Eq{"actor_id": actorID, "active": true})
	if exceptID != "" {
		q = q.Where(squirrel.NotEq{"id": exceptID})
	}
	stmt, args, err := q.Suffix("RETURNING id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build deactivate sessions sql: %w", err)
	}
	ids, err := queryIDs(ctx, s.db, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("deactivate sessions: %w", err)
	}
	return ids, nil
}

// ListActive implements session.Store.
func (s *Store) ListActive(ctx context.Context, actorID string, now time.Time) ([]*session.Session, error) {
	stmt, args, err := s.builder.Select(sessionColumns...).
		From("sessions").
		Where(squirrel.Eq{"actor_id": actorID, "active": true}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []*session.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess       session.Session
		tokenHash  []byte
		deviceType string
	)
	if err := row.Scan(
		&sess.ID, &sess.ActorID, &tokenHash, &sess.IPAddress, &sess.UserAgent,
		&deviceType, &sess.Device.Browser, &sess.Device.OS, &sess.Fingerprint,
		&sess.Active, &sess.TerminatedReason, &sess.CreatedAt, &sess.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if len(tokenHash) != len(sess.TokenHash) {
		return nil, fmt.Errorf("%w: token hash length %d", session.ErrCorrupt, len(tokenHash))
	}
	copy(sess.TokenHash[:], tokenHash)
	sess.Device.Type = session.DeviceType(deviceType)
	return &sess, nil
}

func queryIDs(ctx context.Context, q querier, stmt string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

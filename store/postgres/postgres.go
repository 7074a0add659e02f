// Package postgres implements the goAuthz store contracts over database/sql
// with the pgx driver. Queries are built with squirrel.
//
// Expected tables (migrations are managed outside this module):
//
//	actors(id text pk, role text, is_active bool)
//	role_permissions(role text, permission text)
//	sessions(id text pk, actor_id text, token_hash bytea unique, ip text,
//	         user_agent text, device_type text, browser text, os text,
//	         fingerprint text, active bool, terminated_reason text,
//	         created_at timestamptz, expires_at timestamptz)
//	two_factor_secrets(actor_id text pk, secret text, enabled bool,
//	                   created_at timestamptz, enabled_at timestamptz null,
//	                   last_used_counter bigint default 0)
//	backup_codes(id text pk, actor_id text, code_hash text, used bool,
//	             created_at timestamptz, used_at timestamptz null)
//	security_findings(type text, severity text, actor_id text,
//	                  session_id text, details jsonb, detected_at timestamptz)
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store implements permission.ActorProvider, permission.Source,
// session.Store, mfa.Store and anomaly.FindingSink.
type Store struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goAuthz/mfa"
)

// GetTwoFactor implements mfa.Store.
func (s *Store) GetTwoFactor(ctx context.Context, actorID string) (*mfa.Secret, error) {
	stmt, args, err := s.builder.Select("secret", "enabled", "created_at", "enabled_at", "last_used_counter").
		From("two_factor_secrets").
		Where(squirrel.Eq{"actor_id": actorID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select two-factor sql: %w", err)
	}

	sec := mfa.Secret{ActorID: actorID}
	var enabledAt sql.NullTime
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&sec.Secret, &sec.Enabled, &sec.CreatedAt, &enabledAt, &sec.LastUsedCounter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select two-factor: %w", err)
	}
	if enabledAt.Valid {
		sec.EnabledAt = enabledAt.Time
	}
	return &sec, nil
}

// SaveTwoFactorSecret implements mfa.Store.
func (s *Store) SaveTwoFactorSecret(ctx context.Context, actorID, secret string, now time.Time) error {
	stmt, args, err := s.builder.Insert("two_factor_secrets").
		Columns("actor_id", "secret", "enabled", "created_at", "enabled_at", "last_used_counter").
		Values(actorID, secret, false, now, nil, 0).
		Suffix("ON CONFLICT (actor_id) DO UPDATE SET secret = EXCLUDED.secret, enabled = false, created_at = EXCLUDED.created_at, enabled_at = NULL, last_used_counter = 0").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert two-factor sql: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert two-factor: %w", err)
	}
	return nil
}

// SetTwoFactorEnabled implements mfa.Store.
func (s *Store) SetTwoFactorEnabled(ctx context.Context, actorID string, now time.Time) error {
	stmt, args, err := s.builder.Update("two_factor_secrets").
		Set("enabled", true).
		Set("enabled_at", now).
		Where(squirrel.Eq{"actor_id": actorID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enable two-factor sql: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	return nil
}

// AdvanceTOTPCounter implements mfa.Store. The row only changes while the
// stored counter is lower, so a replayed step affects no rows.
func (s *Store) AdvanceTOTPCounter(ctx context.Context, actorID string, counter int64) (bool, error) {
	stmt, args, err := s.builder.Update("two_factor_secrets").
		Set("last_used_counter", counter).
		Where(squirrel.Eq{"actor_id": actorID}).
		Where(squirrel.Lt{"last_used_counter": counter}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build advance totp counter sql: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("advance totp counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance totp counter: %w", err)
	}
	return n > 0, nil
}

// DeleteTwoFactor implements mfa.Store.
func (s *Store) DeleteTwoFactor(ctx context.Context, actorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"backup_codes", "two_factor_secrets"} {
			stmt, args, err := s.builder.Delete(table).Where(squirrel.Eq{"actor_id": actorID}).ToSql()
			if err != nil {
				return fmt.Errorf("build delete %s sql: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}

// ReplaceBackupCodes implements mfa.Store.
func (s *Store) ReplaceBackupCodes(ctx context.Context, actorID string, codes []mfa.BackupCode) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, args, err := s.builder.Delete("backup_codes").Where(squirrel.Eq{"actor_id": actorID}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete backup codes sql: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		if len(codes) == 0 {
			return nil
		}

		ins := s.builder.Insert("backup_codes").Columns("id", "actor_id", "code_hash", "used", "created_at")
		for _, c := range codes {
			ins = ins.Values(c.ID, actorID, c.CodeHash, false, c.CreatedAt)
		}
		stmt, args, err = ins.ToSql()
		if err != nil {
			return fmt.Errorf("build insert backup codes sql: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert backup codes: %w", err)
		}
		return nil
	})
}

// ConsumeBackupCode implements mfa.Store. The conditional update makes the
// used=false -> used=true transition happen at most once.
func (s *Store) ConsumeBackupCode(ctx context.Context, actorID, codeHash string, now time.Time) (bool, error) {
	stmt, args, err := s.builder.Update("backup_codes").
		Set("used", true).
		Set("used_at", now).
		Where(squirrel.Eq{"actor_id": actorID, "code_hash": codeHash, "used": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume backup code sql: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return n > 0, nil
}

// CountUnusedBackupCodes implements mfa.Store.
func (s *Store) CountUnusedBackupCodes(ctx context.Context, actorID string) (int, error) {
	stmt, args, err := s.builder.Select("COUNT(*)").
		From("backup_codes").
		Where(squirrel.Eq{"actor_id": actorID, "used": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count backup codes sql: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

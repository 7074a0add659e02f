package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goAuthz/permission"
)

// GetActor implements permission.ActorProvider.
func (s *Store) GetActor(ctx context.Context, actorID string) (permission.Actor, error) {
	stmt, args, err := s.builder.Select("role", "is_active").
		From("actors").
		Where(squirrel.Eq{"id": actorID}).
		Limit(1).
		ToSql()
	if err != nil {
		return permission.Actor{}, fmt.Errorf("build select actor sql: %w", err)
	}

	var (
		roleName string
		active   bool
	)
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&roleName, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return permission.Actor{}, permission.ErrActorNotFound
		}
		return permission.Actor{}, fmt.Errorf("select actor: %w", err)
	}

	role, err := permission.ParseRole(roleName)
	if err != nil {
		return permission.Actor{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	return permission.Actor{ID: actorID, Role: role, IsActive: active}, nil
}

// PermissionsForRole implements permission.Source.
func (s *Store) PermissionsForRole(ctx context.Context, role permission.Role) ([]permission.Permission, error) {
	stmt, args, err := s.builder.Select("permission").
		From("role_permissions").
		Where(squirrel.Eq{"role": role.String()}).
		OrderBy("permission").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role permissions sql: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select role permissions: %w", err)
	}
	defer rows.Close()

	var grants []permission.Permission
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		p, err := permission.ParsePermission(raw)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		grants = append(grants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}
	return grants, nil
}

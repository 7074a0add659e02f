package permission

import (
	"context"
	"errors"
)

// ErrActorNotFound is returned by an ActorProvider for unknown actor IDs.
var ErrActorNotFound = errors.New("actor not found")

// Actor is an authenticated identity evaluated against permissions.
type Actor struct {
	ID       string
	Role     Role
	IsActive bool
}

// ActorProvider loads actors from the system of record. Implementations
// return ErrActorNotFound for unknown IDs and wrap every other failure.
type ActorProvider interface {
	GetActor(ctx context.Context, actorID string) (Actor, error)
}

// Source resolves the grant list of a role. A static [Table] and the
// relational store both implement it.
type Source interface {
	PermissionsForRole(ctx context.Context, role Role) ([]Permission, error)
}

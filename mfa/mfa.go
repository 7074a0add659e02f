// Package mfa defines the second-factor records and the Store contract the
// two-factor pipeline persists them through.
//
// A Secret moves DISABLED -> PENDING (saved, not enabled) -> ENABLED and
// back to DISABLED when deleted. Backup codes are stored only as hashes and
// are consumed at most once.
package mfa

import (
	"context"
	"time"
)

// BackupCodeCount is the size of every issued backup code batch.
const BackupCodeCount = 10

// State is the per-actor two-factor state.
type State string

const (
	StateDisabled State = "disabled"
	StatePending  State = "pending"
	StateEnabled  State = "enabled"
)

// Secret is an actor's TOTP shared secret.
type Secret struct {
	ActorID   string
	Secret    string
	Enabled   bool
	CreatedAt time.Time
	EnabledAt time.Time
	// LastUsedCounter is the highest TOTP step accepted so far; zero for a
	// fresh secret.
	LastUsedCounter int64
}

// StateOf returns the state implied by s; a nil or empty secret is
// disabled.
func StateOf(s *Secret) State {
	switch {
	case s == nil || s.Secret == "":
		return StateDisabled
	case s.Enabled:
		return StateEnabled
	default:
		return StatePending
	}
}

// BackupCode is one hashed single-use code.
type BackupCode struct {
	ID        string
	ActorID   string
	CodeHash  string
	Used      bool
	CreatedAt time.Time
	UsedAt    time.Time
}

// Store persists two-factor state.
type Store interface {
	// GetTwoFactor returns nil, nil when the actor has no secret.
	GetTwoFactor(ctx context.Context, actorID string) (*Secret, error)
	// SaveTwoFactorSecret stores secret as pending, replacing any previous
	// secret for the actor.
	SaveTwoFactorSecret(ctx context.Context, actorID, secret string, now time.Time) error
	SetTwoFactorEnabled(ctx context.Context, actorID string, now time.Time) error
	// AdvanceTOTPCounter raises LastUsedCounter to counter and reports
	// false, leaving it unchanged, when counter is not above the stored
	// value or the actor has no secret.
	AdvanceTOTPCounter(ctx context.Context, actorID string, counter int64) (bool, error)
	// DeleteTwoFactor removes the secret and every backup code. Deleting a
	// missing secret is not an error.
	DeleteTwoFactor(ctx context.Context, actorID string) error
	// ReplaceBackupCodes invalidates all previous codes of the actor and
	// stores codes.
	ReplaceBackupCodes(ctx context.Context, actorID string, codes []BackupCode) error
	// ConsumeBackupCode atomically marks the unused code with codeHash as
	// used and reports whether one was found.
	ConsumeBackupCode(ctx context.Context, actorID, codeHash string, now time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, actorID string) (int, error)
}

package goAuthz

import (
	"context"

	internalflows "github.com/MrEthical07/goAuthz/internal/flows"
)

// TwoFactorSetup defines a public type used by goAuthz APIs.
//
// Secret and BackupCodes are shown to the actor once. Only hashes of the
// backup codes are stored.
type TwoFactorSetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// TwoFactorResult defines a public type used by goAuthz APIs.
type TwoFactorResult struct {
	// Success is true when the code verified or no second factor is enabled.
	Success bool
	// Required reports whether the actor has an enabled second factor.
	Required             bool
	IsBackupCode         bool
	RemainingBackupCodes int
}

// GenerateTwoFactorSetup describes the generatetwofactorsetup operation and its observable behavior.
//
// GenerateTwoFactorSetup replaces any pending secret and backup codes. It
// fails with ErrTwoFactorAlreadyEnabled once a secret has been confirmed.
func (e *Engine) GenerateTwoFactorSetup(ctx context.Context, actorID string) (*TwoFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	setup, err := e.flows.GenerateTwoFactorSetup(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetup{
		Secret:      setup.Secret,
		URI:         setup.URI,
		BackupCodes: setup.BackupCodes,
	}, nil
}

// EnableTwoFactor confirms a pending secret with a current code. A wrong
// code returns false and leaves the secret pending.
func (e *Engine) EnableTwoFactor(ctx context.Context, actorID, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flows.EnableTwoFactor(ctx, actorID, code)
}

// VerifyForLogin describes the verifyforlogin operation and its observable behavior.
//
// The token is tried as a TOTP code first and then as a backup code, which
// is consumed on success. Failures count toward the per-actor attempt limit
// and surface ErrTwoFactorRateLimited once it is reached.
func (e *Engine) VerifyForLogin(ctx context.Context, actorID, token string) (*TwoFactorResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res, err := e.flows.VerifyForLogin(ctx, actorID, token)
	if err != nil {
		return nil, err
	}
	return twoFactorResultFrom(res), nil
}

// DisableTwoFactor describes the disabletwofactor operation and its observable behavior.
func (e *Engine) DisableTwoFactor(ctx context.Context, actorID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.flows.DisableTwoFactor(ctx, actorID)
}

// RegenerateBackupCodes issues a fresh batch after checking totpCode. Every
// earlier code stops verifying.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, actorID, totpCode string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.flows.RegenerateBackupCodes(ctx, actorID, totpCode)
}

func twoFactorResultFrom(res *internalflows.TwoFactorResult) *TwoFactorResult {
	if res == nil {
		return nil
	}
	return &TwoFactorResult{
		Success:              res.Success,
		Required:             res.Required,
		IsBackupCode:         res.IsBackupCode,
		RemainingBackupCodes: res.RemainingBackupCodes,
	}
}

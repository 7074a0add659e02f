package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goAuthz/mfa"
)

// TwoFactorSetup is returned once from setup; none of it is recoverable
// later.
type TwoFactorSetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// TwoFactorResult describes a successful or failed login verification.
type TwoFactorResult struct {
	Success              bool
	Required             bool
	IsBackupCode         bool
	RemainingBackupCodes int
}

type TwoFactorMetrics struct {
	SetupGenerated         int
	Enabled                int
	Disabled               int
	VerifySuccess          int
	VerifyFailure          int
	BackupCodeUsed         int
	BackupCodesRegenerated int
	RateLimited            int
	Replayed               int
}

type TwoFactorEvents struct {
	SetupGenerated         string
	Enabled                string
	EnableFailed           string
	Disabled               string
	VerifySuccess          string
	VerifyFailure          string
	BackupCodeUsed         string
	BackupCodesRegenerated string
}

type TwoFactorErrors struct {
	EngineNotReady   error
	AlreadyEnabled   error
	NotPending       error
	NotEnabled       error
	Invalid          error
	RateLimited      error
	StoreUnavailable error
}

type TwoFactorDeps struct {
	BackupCodeCount  int
	BackupCodeLength int

	Now        func() time.Time
	CheckActor func(context.Context, string) error

	Store mfa.Store

	HashBackupCode func(actorID, canonical string) (string, error)
	NewCodeID      func() string
	GenerateSecret func() (string, error)
	ProvisionURI   func(secret, account string) string
	// VerifyCode reports whether code matches secret at now and the time
	// step it matched.
	VerifyCode func(secret, code string, now time.Time) (bool, int64, error)

	CheckLimiter         func(context.Context, string) error
	RecordLimiterFailure func(context.Context, string) error
	ResetLimiter         func(context.Context, string) error
	IsRateLimited        func(error) bool

	RandomIndex func(int) (int, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

func RunGenerateTwoFactorSetup(ctx context.Context, actorID string, deps TwoFactorDeps) (*TwoFactorSetup, error) {
	normalizeTwoFactorDeps(&deps)
	if !deps.ready() || deps.GenerateSecret == nil || deps.ProvisionURI == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if err := deps.CheckActor(ctx, actorID); err != nil {
		return nil, err
	}

	rec, err := deps.Store.GetTwoFactor(ctx, actorID)
	if err != nil {
		return nil, deps.unavailable(err)
	}
	if mfa.StateOf(rec) == mfa.StateEnabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	secret, err := deps.GenerateSecret()
	if err != nil {
		return nil, err
	}
	now := deps.Now()
	codes, records, err := newBackupCodeBatch(actorID, now, deps)
	if err != nil {
		return nil, err
	}

	if err := deps.Store.SaveTwoFactorSecret(ctx, actorID, secret, now); err != nil {
		return nil, deps.unavailable(err)
	}
	if err := deps.Store.ReplaceBackupCodes(ctx, actorID, records); err != nil {
		return nil, deps.unavailable(err)
	}

	deps.MetricInc(deps.Metrics.SetupGenerated)
	deps.EmitAudit(ctx, deps.Events.SetupGenerated, true, actorID, "", nil, nil)
	return &TwoFactorSetup{
		Secret:      secret,
		URI:         deps.ProvisionURI(secret, actorID),
		BackupCodes: codes,
	}, nil
}

// RunEnableTwoFactor confirms a pending secret. A wrong code keeps the
// secret pending and returns false without an error.
func RunEnableTwoFactor(ctx context.Context, actorID, code string, deps TwoFactorDeps) (bool, error) {
	normalizeTwoFactorDeps(&deps)
	if !deps.ready() {
		return false, deps.Errors.EngineNotReady
	}

	rec, err := deps.Store.GetTwoFactor(ctx, actorID)
	if err != nil {
		return false, deps.unavailable(err)
	}
	switch mfa.StateOf(rec) {
	case mfa.StateEnabled:
		return false, deps.Errors.AlreadyEnabled
	case mfa.StateDisabled:
		return false, deps.Errors.NotPending
	}

	now := deps.Now()
	ok, _, err := deps.verifyTOTP(ctx, actorID, rec, code, now)
	if err != nil {
		return false, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.EnableFailed, false, actorID, "", deps.Errors.Invalid, nil)
		return false, nil
	}

	if err := deps.Store.SetTwoFactorEnabled(ctx, actorID, now); err != nil {
		return false, deps.unavailable(err)
	}
	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitAudit(ctx, deps.Events.Enabled, true, actorID, "", nil, nil)
	return true, nil
}

// RunVerifyForLogin checks token against the actor's TOTP secret and, when
// that fails, against the unused backup codes. Actors without an enabled
// second factor pass with Required=false.
func RunVerifyForLogin(ctx context.Context, actorID, token string, deps TwoFactorDeps) (*TwoFactorResult, error) {
	normalizeTwoFactorDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	rec, err := deps.Store.GetTwoFactor(ctx, actorID)
	if err != nil {
		return nil, deps.unavailable(err)
	}
	if mfa.StateOf(rec) != mfa.StateEnabled {
		return &TwoFactorResult{Success: true}, nil
	}

	if err := deps.checkLimiter(ctx, actorID); err != nil {
		return nil, err
	}

	now := deps.Now()
	token = strings.TrimSpace(token)
	ok, replayed, err := deps.verifyTOTP(ctx, actorID, rec, token, now)
	if err != nil {
		return nil, err
	}
	if replayed {
		if err := deps.recordFailure(ctx, actorID); err != nil {
			return nil, err
		}
		deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, actorID, "", deps.Errors.Invalid, func() map[string]string {
			return map[string]string{"reason": "replay"}
		})
		return &TwoFactorResult{Required: true}, nil
	}
	if ok {
		_ = deps.ResetLimiter(ctx, actorID)
		deps.MetricInc(deps.Metrics.VerifySuccess)
		deps.EmitAudit(ctx, deps.Events.VerifySuccess, true, actorID, "", nil, nil)
		return &TwoFactorResult{Success: true, Required: true}, nil
	}

	canonical := CanonicalizeBackupCode(token)
	if isBackupCodeShape(canonical, deps.BackupCodeLength) {
		hash, err := deps.HashBackupCode(actorID, canonical)
		if err != nil {
			return nil, err
		}
		consumed, err := deps.Store.ConsumeBackupCode(ctx, actorID, hash, now)
		if err != nil {
			return nil, deps.unavailable(err)
		}
		if consumed {
			_ = deps.ResetLimiter(ctx, actorID)
			remaining, err := deps.Store.CountUnusedBackupCodes(ctx, actorID)
			if err != nil {
				return nil, deps.unavailable(err)
			}
			deps.MetricInc(deps.Metrics.BackupCodeUsed)
			deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, actorID, "", nil, func() map[string]string {
				return map[string]string{"remaining": fmt.Sprint(remaining)}
			})
			return &TwoFactorResult{
				Success:              true,
				Required:             true,
				IsBackupCode:         true,
				RemainingBackupCodes: remaining,
			}, nil
		}
	}

	if err := deps.recordFailure(ctx, actorID); err != nil {
		return nil, err
	}
	deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, actorID, "", deps.Errors.Invalid, nil)
	return &TwoFactorResult{Required: true}, nil
}

// RunDisableTwoFactor removes the secret and every backup code. Disabling an
// actor without a second factor succeeds.
func RunDisableTwoFactor(ctx context.Context, actorID string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	if err := deps.Store.DeleteTwoFactor(ctx, actorID); err != nil {
		return deps.unavailable(err)
	}
	_ = deps.ResetLimiter(ctx, actorID)
	deps.MetricInc(deps.Metrics.Disabled)
	deps.EmitAudit(ctx, deps.Events.Disabled, true, actorID, "", nil, nil)
	return nil
}

func RunRegenerateBackupCodes(ctx context.Context, actorID, totpCode string, deps TwoFactorDeps) ([]string, error) {
	normalizeTwoFactorDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	rec, err := deps.Store.GetTwoFactor(ctx, actorID)
	if err != nil {
		return nil, deps.unavailable(err)
	}
	if mfa.StateOf(rec) != mfa.StateEnabled {
		return nil, deps.Errors.NotEnabled
	}
	if err := deps.checkLimiter(ctx, actorID); err != nil {
		return nil, err
	}

	now := deps.Now()
	ok, _, err := deps.verifyTOTP(ctx, actorID, rec, strings.TrimSpace(totpCode), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := deps.recordFailure(ctx, actorID); err != nil {
			return nil, err
		}
		return nil, deps.Errors.Invalid
	}

	codes, records, err := newBackupCodeBatch(actorID, now, deps)
	if err != nil {
		return nil, err
	}
	if err := deps.Store.ReplaceBackupCodes(ctx, actorID, records); err != nil {
		return nil, deps.unavailable(err)
	}
	_ = deps.ResetLimiter(ctx, actorID)

	deps.MetricInc(deps.Metrics.BackupCodesRegenerated)
	deps.EmitAudit(ctx, deps.Events.BackupCodesRegenerated, true, actorID, "", nil, nil)
	return codes, nil
}

func newBackupCodeBatch(actorID string, now time.Time, deps TwoFactorDeps) ([]string, []mfa.BackupCode, error) {
	codes := make([]string, 0, deps.BackupCodeCount)
	records := make([]mfa.BackupCode, 0, deps.BackupCodeCount)
	for i := 0; i < deps.BackupCodeCount; i++ {
		raw, err := NewBackupCode(deps.BackupCodeLength, deps.RandomIndex)
		if err != nil {
			return nil, nil, err
		}
		hash, err := deps.HashBackupCode(actorID, raw)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, mfa.BackupCode{
			ID:        deps.NewCodeID(),
			ActorID:   actorID,
			CodeHash:  hash,
			CreatedAt: now,
		})
		codes = append(codes, FormatBackupCode(raw))
	}
	return codes, records, nil
}

func (d TwoFactorDeps) ready() bool {
	return d.Store != nil && d.HashBackupCode != nil && d.VerifyCode != nil
}

// verifyTOTP checks code and claims its time step. A step at or below the
// last accepted one is reported as replayed and never as ok.
func (d TwoFactorDeps) verifyTOTP(ctx context.Context, actorID string, rec *mfa.Secret, code string, now time.Time) (ok, replayed bool, err error) {
	ok, counter, err := d.VerifyCode(rec.Secret, code, now)
	if err != nil {
		return false, false, d.unavailable(err)
	}
	if !ok {
		return false, false, nil
	}
	if counter <= rec.LastUsedCounter {
		d.MetricInc(d.Metrics.Replayed)
		return false, true, nil
	}
	advanced, err := d.Store.AdvanceTOTPCounter(ctx, actorID, counter)
	if err != nil {
		return false, false, d.unavailable(err)
	}
	if !advanced {
		d.MetricInc(d.Metrics.Replayed)
		return false, true, nil
	}
	return true, false, nil
}

func (d TwoFactorDeps) unavailable(err error) error {
	return fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
}

func (d TwoFactorDeps) checkLimiter(ctx context.Context, actorID string) error {
	if err := d.CheckLimiter(ctx, actorID); err != nil {
		if d.IsRateLimited(err) {
			d.MetricInc(d.Metrics.RateLimited)
			return d.Errors.RateLimited
		}
		return d.unavailable(err)
	}
	return nil
}

// recordFailure counts a failed attempt. Reaching the limit is not itself
// an error; the next attempt is rejected by checkLimiter.
func (d TwoFactorDeps) recordFailure(ctx context.Context, actorID string) error {
	d.MetricInc(d.Metrics.VerifyFailure)
	if err := d.RecordLimiterFailure(ctx, actorID); err != nil && !d.IsRateLimited(err) {
		return d.unavailable(err)
	}
	return nil
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.BackupCodeCount <= 0 {
		deps.BackupCodeCount = mfa.BackupCodeCount
	}
	if deps.BackupCodeLength <= 0 {
		deps.BackupCodeLength = DefaultBackupCodeLength
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CheckActor == nil {
		deps.CheckActor = func(context.Context, string) error { return nil }
	}
	if deps.NewCodeID == nil {
		deps.NewCodeID = func() string { return "" }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.RecordLimiterFailure == nil {
		deps.RecordLimiterFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

package goAuthz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	internalflows "github.com/MrEthical07/goAuthz/internal/flows"
)

func TestTwoFactorLifecycle(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	res, err := te.VerifyForLogin(ctx, "alice", "")
	if err != nil {
		t.Fatalf("VerifyForLogin failed: %v", err)
	}
	if !res.Success || res.Required {
		t.Fatalf("expected pass-through without two-factor, got %+v", res)
	}

	setup, err := te.GenerateTwoFactorSetup(ctx, "alice")
	if err != nil {
		t.Fatalf("GenerateTwoFactorSetup failed: %v", err)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(setup.BackupCodes))
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/goAuthz:alice?") || !strings.Contains(setup.URI, "secret="+setup.Secret) {
		t.Fatalf("unexpected provisioning URI %q", setup.URI)
	}

	// Pending secrets do not gate login.
	if res, _ := te.VerifyForLogin(ctx, "alice", ""); res == nil || res.Required {
		t.Fatalf("expected pending setup not to require a code, got %+v", res)
	}

	ok, err := te.EnableTwoFactor(ctx, "alice", "12345")
	if err != nil || ok {
		t.Fatalf("expected malformed code to be rejected without error: ok=%v err=%v", ok, err)
	}
	ok, err = te.EnableTwoFactor(ctx, "alice", te.totpCode(t, setup.Secret))
	if err != nil || !ok {
		t.Fatalf("EnableTwoFactor failed: ok=%v err=%v", ok, err)
	}
	if _, err := te.EnableTwoFactor(ctx, "alice", te.totpCode(t, setup.Secret)); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected ErrTwoFactorAlreadyEnabled, got %v", err)
	}
	if _, err := te.GenerateTwoFactorSetup(ctx, "alice"); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected setup to be refused once enabled, got %v", err)
	}

	te.clock.Advance(30 * time.Second)
	res, err = te.VerifyForLogin(ctx, "alice", te.totpCode(t, setup.Secret))
	if err != nil || !res.Success || !res.Required || res.IsBackupCode {
		t.Fatalf("expected TOTP login success: res=%+v err=%v", res, err)
	}

	if err := te.DisableTwoFactor(ctx, "alice"); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}
	if err := te.DisableTwoFactor(ctx, "alice"); err != nil {
		t.Fatalf("repeated DisableTwoFactor failed: %v", err)
	}
	res, err = te.VerifyForLogin(ctx, "alice", "")
	if err != nil || !res.Success || res.Required {
		t.Fatalf("expected pass-through after disable: res=%+v err=%v", res, err)
	}
}

func TestTwoFactorSetupReplacesPendingSecret(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	first, err := te.GenerateTwoFactorSetup(ctx, "alice")
	if err != nil {
		t.Fatalf("first setup failed: %v", err)
	}
	second, err := te.GenerateTwoFactorSetup(ctx, "alice")
	if err != nil {
		t.Fatalf("second setup failed: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("expected a fresh secret on repeated setup")
	}

	ok, err := te.EnableTwoFactor(ctx, "alice", te.totpCode(t, second.Secret))
	if err != nil || !ok {
		t.Fatalf("expected latest secret to enable: ok=%v err=%v", ok, err)
	}
}

func TestTwoFactorStateErrors(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	if _, err := te.EnableTwoFactor(ctx, "alice", "123456"); !errors.Is(err, ErrTwoFactorNotPending) {
		t.Fatalf("expected ErrTwoFactorNotPending, got %v", err)
	}
	if _, err := te.RegenerateBackupCodes(ctx, "alice", "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
	if _, err := te.GenerateTwoFactorSetup(ctx, "erin"); !errors.Is(err, ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
	if _, err := te.GenerateTwoFactorSetup(ctx, "dave"); !errors.Is(err, ErrActorInactive) {
		t.Fatalf("expected ErrActorInactive, got %v", err)
	}
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	_, codes := te.enableTwoFactor(t, "alice")

	res, err := te.VerifyForLogin(ctx, "alice", strings.ToLower(codes[3]))
	if err != nil {
		t.Fatalf("VerifyForLogin failed: %v", err)
	}
	if !res.Success || !res.IsBackupCode || res.RemainingBackupCodes != 9 {
		t.Fatalf("expected backup code success with 9 left, got %+v", res)
	}

	res, err = te.VerifyForLogin(ctx, "alice", codes[3])
	if err != nil {
		t.Fatalf("VerifyForLogin failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected a used backup code to fail")
	}

	compact := strings.ReplaceAll(codes[4], "-", "")
	res, err = te.VerifyForLogin(ctx, "alice", compact)
	if err != nil || !res.Success || res.RemainingBackupCodes != 8 {
		t.Fatalf("expected undashed code to verify: res=%+v err=%v", res, err)
	}
	if got := te.MetricsSnapshot().Counters[MetricBackupCodeUsed]; got != 2 {
		t.Fatalf("expected 2 backup code uses, got %d", got)
	}
}

func TestRegenerateBackupCodesInvalidatesPriorBatch(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	secret, old := te.enableTwoFactor(t, "alice")

	if _, err := te.RegenerateBackupCodes(ctx, "alice", "000000x"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}

	fresh, err := te.RegenerateBackupCodes(ctx, "alice", te.totpCode(t, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(fresh) != 10 {
		t.Fatalf("expected 10 fresh codes, got %d", len(fresh))
	}

	res, err := te.VerifyForLogin(ctx, "alice", old[0])
	if err != nil {
		t.Fatalf("VerifyForLogin failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected an old code to stop verifying after regeneration")
	}

	res, err = te.VerifyForLogin(ctx, "alice", fresh[0])
	if err != nil || !res.Success || res.RemainingBackupCodes != 9 {
		t.Fatalf("expected fresh code to verify: res=%+v err=%v", res, err)
	}
}

func TestVerifyForLoginRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.MaxAttempts = 3
	cfg.TOTP.Cooldown = time.Minute
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	secret, _ := te.enableTwoFactor(t, "alice")

	for i := 0; i < 3; i++ {
		res, err := te.VerifyForLogin(ctx, "alice", "ZZZZZ-ZZZZZ")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if res.Success {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}

	if _, err := te.VerifyForLogin(ctx, "alice", te.totpCode(t, secret)); !errors.Is(err, ErrTwoFactorRateLimited) {
		t.Fatalf("expected ErrTwoFactorRateLimited, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricTwoFactorRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited metric, got %d", got)
	}

	te.clock.Advance(time.Minute)
	res, err := te.VerifyForLogin(ctx, "alice", te.totpCode(t, secret))
	if err != nil || !res.Success {
		t.Fatalf("expected success after cooldown: res=%+v err=%v", res, err)
	}
}

func TestVerifyForLoginRejectsReusedCode(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	secret, _ := te.enableTwoFactor(t, "alice")

	code := te.totpCode(t, secret)
	res, err := te.VerifyForLogin(ctx, "alice", code)
	if err != nil || !res.Success {
		t.Fatalf("first use: res=%+v err=%v", res, err)
	}

	// Still inside the same step and then inside the skew window.
	for _, d := range []time.Duration{0, 30 * time.Second} {
		te.clock.Advance(d)
		res, err = te.VerifyForLogin(ctx, "alice", code)
		if err != nil || res.Success || !res.Required {
			t.Fatalf("reused code after %v: res=%+v err=%v", d, res, err)
		}
	}
	if got := te.MetricsSnapshot().Counters[MetricTwoFactorReplay]; got != 2 {
		t.Fatalf("expected two replay rejections, got %d", got)
	}

	res, err = te.VerifyForLogin(ctx, "alice", te.totpCode(t, secret))
	if err != nil || !res.Success {
		t.Fatalf("fresh code: res=%+v err=%v", res, err)
	}
}

func TestRegenerateBackupCodesRejectsReusedCode(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	secret, _ := te.enableTwoFactor(t, "alice")

	code := te.totpCode(t, secret)
	if _, err := te.RegenerateBackupCodes(ctx, "alice", code); err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if _, err := te.RegenerateBackupCodes(ctx, "alice", code); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid for a reused code, got %v", err)
	}
}

func TestBackupCodeFormat(t *testing.T) {
	te := newTestEngine(t, testConfig())
	_, codes := te.enableTwoFactor(t, "carol")

	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if len(code) != 11 || code[5] != '-' {
			t.Fatalf("unexpected backup code shape %q", code)
		}
		canonical := internalflows.CanonicalizeBackupCode(code)
		for _, r := range canonical {
			if !strings.ContainsRune(internalflows.BackupCodeAlphabet, r) {
				t.Fatalf("code %q uses symbol %q outside the alphabet", code, r)
			}
		}
		if _, dup := seen[canonical]; dup {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[canonical] = struct{}{}
	}
}

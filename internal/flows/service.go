package flows

import (
	"context"

	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authorize.Cache != nil && s.deps.Session.Store != nil && s.deps.TwoFactor.Store != nil
}

func (s Service) Authorize(ctx context.Context, actorID, resource, action, scope string) (bool, error) {
	return RunAuthorize(ctx, actorID, resource, action, scope, s.deps.Authorize)
}

func (s Service) Evaluate(ctx context.Context, actorID, resource, action, scope string) (permission.Decision, error) {
	return RunEvaluate(ctx, actorID, resource, action, scope, s.deps.Authorize)
}

func (s Service) CreateSession(ctx context.Context, actorID string, opts SessionOptions) (*session.Session, error) {
	return RunCreateSession(ctx, actorID, opts, s.deps.Session)
}

func (s Service) ValidateSession(ctx context.Context, token, ip string) (*session.Session, error) {
	return RunValidateSession(ctx, token, ip, s.deps.Session)
}

func (s Service) TerminateSessions(ctx context.Context, ids []string, reason string) (int, error) {
	return RunTerminateSessions(ctx, ids, reason, s.deps.Session)
}

func (s Service) TerminateAllUserSessions(ctx context.Context, actorID, exceptID, reason string) (int, error) {
	return RunTerminateAllUserSessions(ctx, actorID, exceptID, reason, s.deps.Session)
}

func (s Service) ListActiveSessions(ctx context.Context, actorID string) ([]*session.Session, error) {
	return RunListActiveSessions(ctx, actorID, s.deps.Session)
}

func (s Service) GenerateTwoFactorSetup(ctx context.Context, actorID string) (*TwoFactorSetup, error) {
	return RunGenerateTwoFactorSetup(ctx, actorID, s.deps.TwoFactor)
}

func (s Service) EnableTwoFactor(ctx context.Context, actorID, code string) (bool, error) {
	return RunEnableTwoFactor(ctx, actorID, code, s.deps.TwoFactor)
}

func (s Service) VerifyForLogin(ctx context.Context, actorID, token string) (*TwoFactorResult, error) {
	return RunVerifyForLogin(ctx, actorID, token, s.deps.TwoFactor)
}

func (s Service) DisableTwoFactor(ctx context.Context, actorID string) error {
	return RunDisableTwoFactor(ctx, actorID, s.deps.TwoFactor)
}

func (s Service) RegenerateBackupCodes(ctx context.Context, actorID, totpCode string) ([]string, error) {
	return RunRegenerateBackupCodes(ctx, actorID, totpCode, s.deps.TwoFactor)
}

package goAuthz

import "github.com/MrEthical07/goAuthz/internal/security"

// SecurityReport defines a public type used by goAuthz APIs.
type SecurityReport = security.Report

// SecurityReport describes the securityreport operation and its observable behavior.
//
// The report reflects the configuration the engine was built with plus
// warnings for settings that pass validation but weaken the posture.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	hasTransport := false
	if e.broadcaster != nil {
		hasTransport = e.broadcaster.HasTransport()
	}

	return security.BuildReport(security.ReportInput{
		ProductionMode:      e.config.Security.ProductionMode,
		ElevationEnabled:    e.config.Elevation.Enabled,
		ElevationAlgorithm:  e.config.Elevation.SigningMethod,
		ElevationKeyLength:  len(e.config.Elevation.PrivateKey),
		ElevationTTL:        e.config.Elevation.TTL,
		SessionTTL:          e.config.Session.DefaultTTL,
		SessionMaxTTL:       e.config.Session.MaxTTL,
		MaxSessionsPerActor: e.config.Session.MaxSessionsPerActor,
		BackupCodeHash: security.HashReport{
			Memory:      e.config.BackupCodes.Memory,
			Time:        e.config.BackupCodes.Time,
			Parallelism: e.config.BackupCodes.Parallelism,
			KeyLength:   e.config.BackupCodes.KeyLength,
		},
		BackupCodeCount: e.config.TOTP.BackupCodeCount,
		TOTPSkew:        e.config.TOTP.Skew,
		TOTPMaxAttempts: e.config.TOTP.MaxAttempts,
		TOTPCooldown:    e.config.TOTP.Cooldown,
		DetectIPChange:  e.config.DeviceBinding.DetectIPChange,
		AnomalyEnabled:  e.config.Anomaly.Enabled,
		HasTransport:    hasTransport,
		AuditEnabled:    e.config.Audit.Enabled,
	})
}

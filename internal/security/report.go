package security

import "time"

type HashReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// Report summarizes the security posture of a built engine.
type Report struct {
	ProductionMode         bool
	ElevationEnabled       bool
	ElevationAlgorithm     string
	ElevationTTL           time.Duration
	SessionTTL             time.Duration
	SessionMaxTTL          time.Duration
	MaxSessionsPerActor    int
	BackupCodeHash         HashReport
	BackupCodeCount        int
	TOTPSkew               int
	TwoFactorRateLimited   bool
	IPChangeDetection      bool
	AnomalyDetection       bool
	CrossInstanceBroadcast bool
	AuditEnabled           bool
	Warnings               []string
}

type ReportInput struct {
	ProductionMode      bool
	ElevationEnabled    bool
	ElevationAlgorithm  string
	ElevationKeyLength  int
	ElevationTTL        time.Duration
	SessionTTL          time.Duration
	SessionMaxTTL       time.Duration
	MaxSessionsPerActor int
	BackupCodeHash      HashReport
	BackupCodeCount     int
	TOTPSkew            int
	TOTPMaxAttempts     int
	TOTPCooldown        time.Duration
	DetectIPChange      bool
	AnomalyEnabled      bool
	HasTransport        bool
	AuditEnabled        bool
}

// BuildReport derives the report and flags settings that are legal but weak.
func BuildReport(input ReportInput) Report {
	r := Report{
		ProductionMode:         input.ProductionMode,
		ElevationEnabled:       input.ElevationEnabled,
		SessionTTL:             input.SessionTTL,
		SessionMaxTTL:          input.SessionMaxTTL,
		MaxSessionsPerActor:    input.MaxSessionsPerActor,
		BackupCodeHash:         input.BackupCodeHash,
		BackupCodeCount:        input.BackupCodeCount,
		TOTPSkew:               input.TOTPSkew,
		TwoFactorRateLimited:   input.TOTPMaxAttempts > 0 && input.TOTPCooldown > 0,
		IPChangeDetection:      input.DetectIPChange,
		AnomalyDetection:       input.AnomalyEnabled,
		CrossInstanceBroadcast: input.HasTransport,
		AuditEnabled:           input.AuditEnabled,
	}
	if input.ElevationEnabled {
		r.ElevationAlgorithm = input.ElevationAlgorithm
		r.ElevationTTL = input.ElevationTTL
	}

	if input.ElevationEnabled && input.ElevationAlgorithm == "hs256" && input.ElevationKeyLength < 32 {
		r.Warnings = append(r.Warnings, "elevation hs256 key shorter than 256 bits")
	}
	if input.BackupCodeHash.Memory < 19*1024 {
		r.Warnings = append(r.Warnings, "backup code argon2 memory below 19 MiB")
	}
	if input.TOTPSkew > 1 {
		r.Warnings = append(r.Warnings, "totp skew wider than one step")
	}
	if !input.HasTransport {
		r.Warnings = append(r.Warnings, "no broadcast transport; other instances rely on cache TTL")
	}
	if !input.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled")
	}
	return r
}

package internaldefs

import (
	goAuthz "github.com/MrEthical07/goAuthz"
)

// CounterDef names one goAuthz counter for exporters.
type CounterDef struct {
	ID   goAuthz.MetricID
	Name string
	Help string
}

// HistogramDef names one goAuthz histogram for exporters.
type HistogramDef struct {
	ID   goAuthz.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goAuthz.MetricAuthorizeAllowed, Name: "goauthz_authorize_allowed_total", Help: "Authorization decisions that allowed access."},
	{ID: goAuthz.MetricAuthorizeDenied, Name: "goauthz_authorize_denied_total", Help: "Authorization decisions that denied access."},
	{ID: goAuthz.MetricCacheHit, Name: "goauthz_cache_hit_total", Help: "Decisions answered from the permission cache."},
	{ID: goAuthz.MetricCacheMiss, Name: "goauthz_cache_miss_total", Help: "Decisions evaluated against the permission source."},
	{ID: goAuthz.MetricUnknownActor, Name: "goauthz_unknown_actor_total", Help: "Decisions denied because the actor does not exist."},
	{ID: goAuthz.MetricSessionCreated, Name: "goauthz_session_created_total", Help: "Created sessions."},
	{ID: goAuthz.MetricSessionEvicted, Name: "goauthz_session_evicted_total", Help: "Sessions deactivated by the per-actor limit."},
	{ID: goAuthz.MetricSessionExpired, Name: "goauthz_session_expired_total", Help: "Sessions found expired during validation."},
	{ID: goAuthz.MetricSessionTerminated, Name: "goauthz_session_terminated_total", Help: "Sessions terminated explicitly."},
	{ID: goAuthz.MetricSessionInvalid, Name: "goauthz_session_invalid_total", Help: "Session validations that resolved to no session."},
	{ID: goAuthz.MetricSessionValidated, Name: "goauthz_session_validated_total", Help: "Successful session validations."},
	{ID: goAuthz.MetricSessionIPChanged, Name: "goauthz_session_ip_changed_total", Help: "Validations observed from a new IP address."},
	{ID: goAuthz.MetricTwoFactorSetup, Name: "goauthz_two_factor_setup_total", Help: "Generated two-factor setups."},
	{ID: goAuthz.MetricTwoFactorEnabled, Name: "goauthz_two_factor_enabled_total", Help: "Two-factor activations."},
	{ID: goAuthz.MetricTwoFactorDisabled, Name: "goauthz_two_factor_disabled_total", Help: "Two-factor deactivations."},
	{ID: goAuthz.MetricTwoFactorSuccess, Name: "goauthz_two_factor_success_total", Help: "Successful two-factor verifications."},
	{ID: goAuthz.MetricTwoFactorFailure, Name: "goauthz_two_factor_failure_total", Help: "Failed two-factor verifications."},
	{ID: goAuthz.MetricTwoFactorRateLimited, Name: "goauthz_two_factor_rate_limited_total", Help: "Two-factor verifications rejected by the rate limiter."},
	{ID: goAuthz.MetricTwoFactorReplay, Name: "goauthz_two_factor_replay_total", Help: "TOTP codes rejected because their time step was already used."},
	{ID: goAuthz.MetricBackupCodeUsed, Name: "goauthz_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goAuthz.MetricBackupCodeRegenerated, Name: "goauthz_backup_code_regenerated_total", Help: "Backup code regenerations."},
	{ID: goAuthz.MetricElevationIssued, Name: "goauthz_elevation_issued_total", Help: "Issued elevation tokens."},
	{ID: goAuthz.MetricElevationRejected, Name: "goauthz_elevation_rejected_total", Help: "Rejected elevation requests or tokens."},
	{ID: goAuthz.MetricAnomalyFinding, Name: "goauthz_anomaly_finding_total", Help: "Security findings reported by the anomaly detector."},
	{ID: goAuthz.MetricUpdatePublished, Name: "goauthz_update_published_total", Help: "Permission updates published by this instance."},
	{ID: goAuthz.MetricUpdateApplied, Name: "goauthz_update_applied_total", Help: "Permission updates applied to the local cache."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAuthz.MetricAuthorizeLatency, Name: "goauthz_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goauthz_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the bucket upper bounds as rendered in le labels.
var HistogramBounds = []string{
	"0.0005",
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"+Inf",
}

// HistogramUpperBounds holds the finite bounds of HistogramBounds in seconds.
var HistogramUpperBounds = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05}

// NormalizeBuckets copies raw into a fixed-size bucket array, zero filling
// anything missing.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

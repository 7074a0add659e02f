// Package goAuthz provides request authorization and session lifecycle
// management for administrative applications: a cached role/permission
// evaluator, per-actor session limits with device fingerprinting and
// anomaly findings, and a TOTP plus backup-code second factor that gates
// session elevation.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goAuthz is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (MetricsSnapshot, SessionInfo, TwoFactorResult, etc.). Flow orchestration, attempt
// limiting, keyed locking and audit dispatch live under internal/ and are never exported.
// Storage contracts are defined by the permission, session, mfa and anomaly packages and
// implemented by store/memory, store/postgres and the Redis stores.
//
// # Cache consistency
//
// Authorize caches every decision it computes for the configured TTL. External changes to
// roles, grants or actors reach the cache only through [Engine.PublishPermissionUpdate]
// (locally) and [Engine.Run] (from other instances over a broadcast transport). The TTL
// bounds staleness when an update is lost.
//
// # What this package must NOT do
//
//   - Log or persist plaintext session tokens, TOTP secrets or backup codes.
//   - Perform store I/O while holding the decision cache lock.
//   - Import any sub-package that re-imports goAuthz (no import cycles).
package goAuthz

// Package stores provides Redis-backed persistence for second-factor state:
// the per-actor TOTP secret and the set of unused backup code hashes.
//
// # Design
//
// Secrets live in one hash per actor. Backup codes live in a hash keyed by
// code hash, replaced wholesale inside MULTI/EXEC on regeneration and
// consumed with a single HDEL so each code verifies at most once across
// every instance sharing the Redis deployment.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT generate secrets or codes,
// hash codes, enforce attempt limits, or make verification decisions; those
// belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import goAuthz or any sibling internal package.
//   - Store or log plaintext backup codes.
package stores

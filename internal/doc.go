// Package internal contains helper utilities that are intentionally private to goAuthz,
// including secure random generation and session token hashing.
//
// # Sub-packages
//
//   - flows: authorize, session and two-factor orchestrators driven by Engine-built dependency sets
//   - keylock: per-key mutexes serializing session-limit enforcement per actor
//   - limiters: two-factor attempt limiters (Redis fixed window, in-process token bucket)
//   - security: the configuration posture report
//   - stores: the Redis two-factor store
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAuthz API.
//   - Be imported by any package outside the goAuthz module.
package internal

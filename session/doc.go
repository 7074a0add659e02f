// Package session holds the session model, the Store contract the engine
// persists sessions through, and a Redis-backed Store.
//
// # Limit enforcement
//
// Store.CreateWithLimit deactivates the oldest active sessions of an actor
// and inserts the new one as a single atomic step. RedisStore does this in
// one Lua script over a per-actor sorted set ordered by insertion sequence.
//
// # Device metadata
//
// ParseUserAgent is a best-effort classifier; it never fails and degrades
// to DeviceUnknown and "Unknown". Fingerprint hashes device and network
// attributes with BLAKE3.
//
// # What this package must NOT do
//
//   - Import goAuthz, jwt, or the cache (no upward imports).
//   - Persist plaintext session tokens. Only the SHA-256 token hash is
//     stored and indexed.
package session

// Package cache implements the authorization decision cache: a bounded LRU map
// from (actor, resource, action, scope) to an allow/deny decision with a TTL on
// every entry.
//
// # Concurrency
//
// Structural changes (insert, evict, invalidate, clear) hold the write lock.
// Hits hold only the read lock; the recency promotion a hit implies is queued
// and applied under the write lock before the next structural change, so LRU
// order is exact for any sequence of calls that does not overlap.
//
// # Expiry
//
// An entry is expired once now - insertedAt >= ttl. Get evicts an expired entry
// on the spot, so Size never counts entries Get would refuse to return.
//
// # Actor counters
//
// Small per-actor integer counters live alongside the entries. They are cleared
// together with the actor's entries by [Cache.InvalidateActor] and [Cache.Clear].
//
// # What this package must NOT do
//
//   - Compute decisions; callers resolve misses and store them with Set.
//   - Perform I/O.
package cache

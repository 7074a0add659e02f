// Package limiters implements attempt limiters for second-factor verification.
//
// [TwoFactorLimiter] is a Redis fixed-window counter shared by every instance.
// [LocalTwoFactorLimiter] is an in-process token bucket used when no Redis client
// is configured. Both expose Check, RecordFailure and Reset keyed by actor ID.
package limiters

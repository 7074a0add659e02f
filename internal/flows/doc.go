// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunAuthorize, RunCreateSession, RunVerifyForLogin, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. Stores, limiters, hashers, audit and metrics are
// all injected, so the flows can be unit tested with in-memory fakes and the
// Engine stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the decision cache, actor and grant lookups, the
// session and two-factor stores, attempt limiters, audit and metrics. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goAuthz (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency fields.
package flows

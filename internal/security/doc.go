// Package security derives the engine's security posture report from its
// configuration.
//
// # What this package must NOT do
//
//   - Import the root goAuthz package (the root package imports this one).
package security

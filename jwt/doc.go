// Package jwt issues and verifies short-lived session elevation tokens.
//
// An elevation token is a signed JWT (Ed25519 or HS256) carrying the session
// ID it was issued for, the actor, and the second-factor method that earned
// it. Verification pins the algorithm, requires an expiry, and optionally
// enforces issuer, audience and key IDs.
package jwt

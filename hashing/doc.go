// Package hashing derives and verifies Argon2id hashes of short secrets such as
// two-factor backup codes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Derivation is deterministic for a given salt. Backup codes are hashed with a
// per-actor salt from [ActorSalt], so a store can consume a code with a single
// equality match on the encoded hash.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive hashes.
//   - Import any other goAuthz package.
//   - Log plaintext secrets.
package hashing

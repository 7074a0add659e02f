// Package permission defines actors, roles, and permission grants, and the pure
// decision function that evaluates them.
//
// # Matching
//
// A grant is written resource:action[:scope], resource:* or *. [Explain] checks,
// in order, an exact grant, a resource wildcard, and the global wildcard; the first
// match allows and anything else denies. Inactive actors are denied before any
// grant is consulted.
//
// # Role hierarchy
//
// [Role] values are ordered (viewer < editor < admin < super_admin) and
// [Role.AtLeast] answers "is at least editor" style questions. The ordering never
// implies grants: a role is allowed exactly what its own grant list says, so an
// admin without products:read is denied products:read even if editors have it.
//
// # What this package must NOT do
//
//   - Cache decisions (the cache package owns that).
//   - Perform I/O inside [Explain] or [Evaluate].
//   - Import goAuthz or any store package.
package permission

// Package middleware adapts goAuthz sessions, permissions and elevation to
// net/http.
//
// # Guards
//
//   - [Guard] resolves a bearer token (or cookie) through ValidateSession and
//     attaches the session, client IP and user agent to the request context.
//   - [RequirePermission] checks resource:action for the attached session.
//   - [RequireElevation] requires a valid elevation token in [ElevationHeader].
//
// The guards take small interfaces that *goAuthz.Engine satisfies.
//
// # What this package must NOT do
//
//   - Decide permissions itself; every decision comes from the Engine.
//   - Access Redis or a database directly.
//   - Log or echo tokens.
package middleware

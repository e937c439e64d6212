// Package authz holds the static route table that maps request paths to the roles
// allowed to reach them.
//
// A [Map] is built once at startup, from Go values or a YAML policy file, and is
// read-only afterwards. Concurrent lookups need no synchronization.
//
// # Patterns
//
//   - "/api/auth/me" matches that path exactly.
//   - "/api/admin/*" matches "/api/admin" and everything below it.
//   - Any other pattern containing glob metacharacters is matched per segment with
//     path.Match, so "/api/users/*/roles" matches "/api/users/42/roles".
//
// Paths are cleaned before matching. Rules are consulted in declaration order and the
// first match wins.
package authz

// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunAuthorize) accepts a typed
// dependency struct and returns a result carrying a failure kind instead of a
// host-level error. The Engine maps failure kinds onto its sentinel errors, metrics
// and audit events, which keeps the Engine type thin and the flows testable with
// plain function stubs.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the refresh store, revocation registry, token
// codec, rate limiter and user directory. They do NOT own any of these resources —
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokengate (to avoid import cycles).
//   - Write to any store from RunAuthorize.
package flows

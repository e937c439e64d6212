// Package tokengate is a token-based session gateway: short-lived signed access
// tokens, rotating opaque refresh tokens, a revocation registry for logged-out access
// tokens, and a route-level role gate.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Lifecycle
//
// Login and Register issue an access token and a refresh token. Refresh consumes the
// presented refresh token with a conditional revoke; of any number of concurrent
// callers presenting the same value exactly one receives a successor. Logout revokes
// the refresh token, blacklists the access token until its own expiry, and optionally
// revokes every refresh token of the owner. Logout never fails the caller.
//
// # Gate
//
// [Engine.Authorize] is the per-request decision. It checks the route table first,
// then the revocation registry, then the token signature and expiry, then the caller's
// role against the first matching route rule. It is read-only and fails closed: a
// revocation store that cannot answer denies the request.
//
// # Boundaries
//
// The public surface is [Engine], [Builder], [Config] and value types. Flow
// orchestration, throttling, audit dispatch and metrics live under internal/. Storage
// backends live in the refresh and revocation packages and are selected by
// [StoreConfig].
package tokengate

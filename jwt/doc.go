// Package jwt issues and verifies the short-lived signed access tokens that carry a
// caller's identity and role between requests.
//
// The codec is stateless: a token's validity is a pure function of the signing key,
// its claims and the clock. Revocation is layered on top by the revocation package.
//
// # What this package must NOT do
//
//   - Touch any store (refresh and revocation state live elsewhere).
//   - Fall back to a built-in signing secret.
//   - Accept tokens signed with any algorithm other than the configured one.
package jwt

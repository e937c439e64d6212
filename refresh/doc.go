// Package refresh is the durable ledger of opaque refresh tokens.
//
// A refresh token value is 32 random bytes, base64url encoded. Nothing about its owner
// can be derived from it. Stores key records by a SHA-256 digest of the value so that
// live refresh credentials are never held at rest.
//
// A record only ever moves from active to revoked. Expiry is derived from ExpiresAt and
// is never written. Revoke is a compare-and-set on the revoked flag: exactly one caller
// observes true for a given value, which is what makes single-use rotation safe.
//
// Two implementations are provided:
//
//   - [PostgresStore] over database/sql (pgx stdlib driver).
//   - [RedisStore] over go-redis with Lua compare-and-set scripts.
package refresh

// Package users provides the owner directory the engine authenticates against.
//
// [PostgresDirectory] keeps owners in the users table and third-party logins in
// user_identities; [MemoryDirectory] is the same contract over a map for local runs and
// examples. Both implement tokengate.UserProvider together with the optional
// UserRegistrar, ExternalIdentityResolver and LoginRecorder interfaces, and hash
// passwords with package password.
//
// Unknown emails and wrong passwords both return tokengate.ErrInvalidCredentials and
// cost the same Argon2 work.
package users

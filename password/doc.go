// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification uses the parameters stored in the hash. [Argon2.NeedsUpgrade] reports
// hashes produced under weaker settings so the user directory can re-hash them after a
// successful login.
//
// The package stores nothing and never logs plaintext.
package password

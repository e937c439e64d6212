package jwt

import "errors"

var (
	// ErrMalformed reports a token that fails format or claim-shape checks.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired reports a correctly signed token whose expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrSignatureMismatch reports a token whose signature, algorithm or key id does not verify.
	ErrSignatureMismatch = errors.New("token signature mismatch")
)

package revocation

import "errors"

var (
	// ErrStoreUnavailable wraps any failure or timeout of the durable store.
	ErrStoreUnavailable = errors.New("revocation store unavailable")
	// ErrUndecodable is returned by Add when the token carries no readable expiry.
	ErrUndecodable = errors.New("token expiry undecodable")
)

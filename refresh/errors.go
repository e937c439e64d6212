package refresh

import "errors"

var (
	// ErrNotFound is returned by Find when no record exists for the value.
	ErrNotFound = errors.New("refresh token not found")
	// ErrStoreUnavailable wraps any failure of the backing store.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

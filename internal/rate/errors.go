package rate

import "errors"

var (
	// ErrRateLimited reports an identifier or address over its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

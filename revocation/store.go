package revocation

import (
	"context"
	"time"
)

// Entry is one durable blacklist record.
type Entry struct {
	Fingerprint string
	ExpiresAt   time.Time
	RevokedAt   time.Time
}

// Store is the durable side of the registry. Put must be idempotent per fingerprint.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	// Lookup reports whether fingerprint is blacklisted and, if so, its expiry.
	Lookup(ctx context.Context, fingerprint string) (time.Time, bool, error)
	// DeleteExpired removes every entry whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

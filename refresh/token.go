package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTTL is the lifetime of a refresh token.
const DefaultTTL = 7 * 24 * time.Hour

const valueSize = 32

// Token is one refresh-token record. Value is only populated on the record returned by
// Create or Find; stores never persist it.
type Token struct {
	Value     string
	OwnerID   string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Store is the durable ledger contract shared by every backend.
type Store interface {
	// Create issues and persists a fresh value for ownerID.
	Create(ctx context.Context, ownerID string) (*Token, error)
	// Find returns ErrNotFound when no record exists.
	Find(ctx context.Context, value string) (*Token, error)
	// Revoke flips the revoked flag and reports whether this call did so.
	// Revoking an already revoked or unknown value is a successful no-op.
	Revoke(ctx context.Context, value string) (bool, error)
	// RevokeAllForOwner revokes every active record of ownerID and returns how many changed.
	RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error)
	// DeleteExpired hard-deletes records that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Valid is the validity predicate callers apply to a found record.
func Valid(rt *Token, now time.Time) bool {
	return rt != nil && !rt.IsRevoked && now.Before(rt.ExpiresAt)
}

// NewValue returns a fresh unguessable refresh-token value.
func NewValue() (string, error) {
	var raw [valueSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("refresh value entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashValue is the storage key of a refresh-token value.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Options configures the behavior shared by store implementations.
type Options struct {
	TTL time.Duration
	// Retention keeps expired records around before the sweep may drop them.
	Retention time.Duration
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Retention < 0 {
		o.Retention = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func newToken(ownerID string, opts Options) (*Token, error) {
	value, err := NewValue()
	if err != nil {
		return nil, err
	}
	now := opts.Now().UTC()
	return &Token{
		Value:     value,
		OwnerID:   ownerID,
		ExpiresAt: now.Add(opts.TTL),
		CreatedAt: now,
	}, nil
}

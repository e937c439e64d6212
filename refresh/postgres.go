package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokengate/internal/storage"
)

const (
	insertTokenSQL = `INSERT INTO refresh_tokens (token_hash, owner_id, expires_at, is_revoked, created_at)
VALUES ($1, $2, $3, FALSE, $4)`
	selectTokenSQL = `SELECT owner_id, expires_at, is_revoked, created_at, revoked_at
FROM refresh_tokens WHERE token_hash = $1`
	revokeTokenSQL = `UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $2
WHERE token_hash = $1 AND NOT is_revoked`
	revokeOwnerSQL = `UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $2
WHERE owner_id = $1 AND NOT is_revoked`
	deleteExpiredSQL = `DELETE FROM refresh_tokens WHERE expires_at < $1`
)

// PostgresStore keeps refresh tokens in the refresh_tokens table.
// Revoke relies on the row-level atomicity of a conditional UPDATE.
type PostgresStore struct {
	db   storage.DBTX
	opts Options
}

// NewPostgresStore returns a store over db, which may be a *sql.DB or a *sql.Tx.
func NewPostgresStore(db storage.DBTX, opts Options) *PostgresStore {
	return &PostgresStore{db: db, opts: opts.withDefaults()}
}

func (s *PostgresStore) Create(ctx context.Context, ownerID string) (*Token, error) {
	if ownerID == "" {
		return nil, errors.New("refresh: owner id required")
	}
	rt, err := newToken(ownerID, s.opts)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, insertTokenSQL, HashValue(rt.Value), rt.OwnerID, rt.ExpiresAt, rt.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rt, nil
}

func (s *PostgresStore) Find(ctx context.Context, value string) (*Token, error) {
	var (
		rt        = Token{Value: value}
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectTokenSQL, HashValue(value)).
		Scan(&rt.OwnerID, &rt.ExpiresAt, &rt.IsRevoked, &rt.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rt.RevokedAt = &t
	}
	return &rt, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, revokeTokenSQL, HashValue(value), s.opts.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *PostgresStore) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, revokeOwnerSQL, ownerID, s.opts.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredSQL, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokengate/internal/storage"
)

const (
	insertEntrySQL = `INSERT INTO revoked_tokens (fingerprint, expires_at, revoked_at)
VALUES ($1, $2, $3) ON CONFLICT (fingerprint) DO NOTHING`
	selectEntrySQL        = `SELECT expires_at FROM revoked_tokens WHERE fingerprint = $1`
	deleteExpiredEntrySQL = `DELETE FROM revoked_tokens WHERE expires_at < $1`
)

// PostgresStore keeps blacklist entries in the revoked_tokens table.
type PostgresStore struct {
	db storage.DBTX
}

func NewPostgresStore(db storage.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	if _, err := s.db.ExecContext(ctx, insertEntrySQL, entry.Fingerprint, entry.ExpiresAt, entry.RevokedAt); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, fingerprint string) (time.Time, bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, selectEntrySQL, fingerprint).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return expiresAt, true, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredEntrySQL, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

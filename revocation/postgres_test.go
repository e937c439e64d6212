package revocation

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresPutIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := exp.Add(-5 * time.Minute)

	mock.ExpectExec(`INSERT INTO revoked_tokens .* ON CONFLICT \(fingerprint\) DO NOTHING`).
		WithArgs("fp-1", exp, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Put(context.Background(), Entry{Fingerprint: "fp-1", ExpiresAt: exp, RevokedAt: at}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresLookup(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectEntrySQL)).
		WithArgs("fp-1").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(exp))
	mock.ExpectQuery(regexp.QuoteMeta(selectEntrySQL)).
		WithArgs("fp-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(selectEntrySQL)).
		WithArgs("fp-3").
		WillReturnError(errors.New("timeout"))

	got, found, err := store.Lookup(context.Background(), "fp-1")
	if err != nil || !found || !got.Equal(exp) {
		t.Fatalf("Lookup(fp-1) = %v, %v, %v", got, found, err)
	}
	if _, found, err := store.Lookup(context.Background(), "fp-2"); err != nil || found {
		t.Fatalf("Lookup(fp-2) = %v, %v", found, err)
	}
	if _, _, err := store.Lookup(context.Background(), "fp-3"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPostgresDeleteExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(deleteExpiredEntrySQL)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteExpired(context.Background(), now)
	if err != nil || n != 4 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
}

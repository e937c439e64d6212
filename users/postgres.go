package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/internal/storage"
	"github.com/MrEthical07/tokengate/password"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	userColumns = `id, email, username, full_name, role, active`

	selectByEmailSQL = `SELECT ` + userColumns + `, password_hash FROM users WHERE lower(email) = lower($1)`
	selectByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	selectByIdentity = `SELECT u.id, u.email, u.username, u.full_name, u.role, u.active ` +
		`FROM user_identities i JOIN users u ON u.id = i.user_id WHERE i.provider = $1 AND i.subject_id = $2`
	selectByEmailNoHashSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	usernameTakenSQL       = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`

	insertUserSQL = `INSERT INTO users (id, email, username, full_name, role, password_hash, active, created_at) ` +
		`VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`
	insertIdentitySQL = `INSERT INTO user_identities (provider, subject_id, user_id, created_at) ` +
		`VALUES ($1, $2, $3, $4) ON CONFLICT (provider, subject_id) DO NOTHING`
	updateLastLoginSQL = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	updateHashSQL      = `UPDATE users SET password_hash = $2 WHERE id = $1`

	uniqueViolation = "23505"
)

// PostgresDirectory is the users-table implementation of the engine's user provider.
type PostgresDirectory struct {
	db     storage.DBTX
	hasher *password.Argon2
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a directory.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewPostgresDirectory returns a directory over db. When db is a *sql.DB, first-sight
// external logins create the user and its identity link in one transaction.
func NewPostgresDirectory(db storage.DBTX, hasher *password.Argon2, opts ...Option) *PostgresDirectory {
	o := buildOptions(opts)
	return &PostgresDirectory{db: db, hasher: hasher, now: o.now, logger: o.logger}
}

func (d *PostgresDirectory) VerifyCredentials(ctx context.Context, email, plaintext string) (tokengate.User, error) {
	var (
		u    tokengate.User
		hash sql.NullString
	)
	err := d.db.QueryRowContext(ctx, selectByEmailSQL, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.Active, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			d.hasher.VerifyDummy(plaintext)
			return tokengate.User{}, tokengate.ErrInvalidCredentials
		}
		return tokengate.User{}, fmt.Errorf("users: lookup by email: %w", err)
	}
	if !hash.Valid || hash.String == "" {
		// Accounts created through a third-party provider have no password.
		d.hasher.VerifyDummy(plaintext)
		return tokengate.User{}, tokengate.ErrInvalidCredentials
	}

	ok, err := d.hasher.Verify(plaintext, hash.String)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return tokengate.User{}, tokengate.ErrInvalidCredentials
		}
		return tokengate.User{}, fmt.Errorf("users: verify password: %w", err)
	}
	if !ok {
		return tokengate.User{}, tokengate.ErrInvalidCredentials
	}

	d.upgradeHash(ctx, u.ID, plaintext, hash.String)
	return u, nil
}

func (d *PostgresDirectory) upgradeHash(ctx context.Context, id, plaintext, current string) {
	upgrade, err := d.hasher.NeedsUpgrade(current)
	if err != nil || !upgrade {
		return
	}
	next, err := d.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if _, err := d.db.ExecContext(ctx, updateHashSQL, id, next); err != nil {
		d.logger.Warn("password rehash failed", "user_id", id, "err", err)
	}
}

func (d *PostgresDirectory) GetUserByID(ctx context.Context, id string) (tokengate.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, selectByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokengate.User{}, tokengate.ErrUserNotFound
		}
		return tokengate.User{}, fmt.Errorf("users: lookup by id: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) CreateUser(ctx context.Context, in tokengate.NewUser) (tokengate.User, error) {
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return tokengate.User{}, fmt.Errorf("%w: %v", tokengate.ErrInvalidRequest, err)
	}
	return d.insertUser(ctx, d.db, in, sql.NullString{String: hash, Valid: true})
}

func (d *PostgresDirectory) insertUser(ctx context.Context, db storage.DBTX, in tokengate.NewUser, hash sql.NullString) (tokengate.User, error) {
	u := tokengate.User{
		ID:       uuid.NewString(),
		Email:    strings.TrimSpace(in.Email),
		Username: strings.TrimSpace(in.Username),
		FullName: strings.TrimSpace(in.FullName),
		Role:     in.Role,
		Active:   true,
	}
	_, err := db.ExecContext(ctx, insertUserSQL, u.ID, u.Email, u.Username, u.FullName, u.Role, hash, d.now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return tokengate.User{}, tokengate.ErrAccountExists
		}
		return tokengate.User{}, fmt.Errorf("users: insert: %w", err)
	}
	return u, nil
}

// ResolveExternal returns the owner linked to (provider, subject). An unlinked identity
// is linked to the owner with the same email, or to a new password-less owner.
func (d *PostgresDirectory) ResolveExternal(ctx context.Context, provider string, id tokengate.ExternalIdentity, defaultRole string) (tokengate.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, selectByIdentity, provider, id.SubjectID))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return tokengate.User{}, fmt.Errorf("users: lookup identity: %w", err)
	}

	resolve := func(ctx context.Context, tx storage.DBTX) error {
		u, err = d.linkOrCreate(ctx, tx, provider, id, defaultRole)
		return err
	}
	if db, ok := d.db.(*sql.DB); ok {
		err = storage.WithTx(ctx, db, nil, resolve)
	} else {
		err = resolve(ctx, d.db)
	}
	if err != nil {
		return tokengate.User{}, err
	}
	return u, nil
}

func (d *PostgresDirectory) linkOrCreate(ctx context.Context, tx storage.DBTX, provider string, id tokengate.ExternalIdentity, defaultRole string) (tokengate.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx, selectByEmailNoHashSQL, strings.TrimSpace(id.Email)))
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		in := tokengate.NewUser{
			Email:    id.Email,
			Username: baseUsername(id.DisplayName, id.Email),
			FullName: id.DisplayName,
			Role:     defaultRole,
		}
		var taken bool
		if err := tx.QueryRowContext(ctx, usernameTakenSQL, in.Username).Scan(&taken); err != nil {
			return tokengate.User{}, fmt.Errorf("users: check username: %w", err)
		}
		if taken {
			in.Username = withSuffix(in.Username)
		}
		u, err = d.insertUser(ctx, tx, in, sql.NullString{})
		if err != nil {
			return tokengate.User{}, err
		}
	default:
		return tokengate.User{}, fmt.Errorf("users: lookup by email: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertIdentitySQL, provider, id.SubjectID, u.ID, d.now().UTC()); err != nil {
		return tokengate.User{}, fmt.Errorf("users: link identity: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := d.db.ExecContext(ctx, updateLastLoginSQL, id, at.UTC()); err != nil {
		return fmt.Errorf("users: record login: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (tokengate.User, error) {
	var u tokengate.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.Active)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

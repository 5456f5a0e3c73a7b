package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// DBTX is the subset of *sql.DB and *sql.Tx used by the PostgreSQL repository.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresAccountRepository implements AccountRepository on PostgreSQL
// through the pgx database/sql driver.
type PostgresAccountRepository struct {
	db DBTX
}

// NewPostgresAccountRepository constructs a repository bound to the given DBTX.
func NewPostgresAccountRepository(db DBTX) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// Create inserts a new account with no profile and no refresh token.
func (r *PostgresAccountRepository) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC().Truncate(time.Second)
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (identity, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		account.Identity, account.PasswordHash, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetByIdentity retrieves an account by its identity.
func (r *PostgresAccountRepository) GetByIdentity(ctx context.Context, identity string) (*Account, error) {
	var a Account
	var refresh, firstName, lastName, address sql.NullString
	var dob sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT identity, password_hash, refresh_token_hash, first_name, last_name,
		        date_of_birth, address, created_at, updated_at
		 FROM accounts WHERE identity = $1`, identity,
	).Scan(&a.Identity, &a.PasswordHash, &refresh, &firstName, &lastName,
		&dob, &address, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}

	a.RefreshTokenHash = refresh.String
	a.Profile.FirstName = stringPtr(firstName)
	a.Profile.LastName = stringPtr(lastName)
	a.Profile.Address = stringPtr(address)
	if dob.Valid {
		t := dob.Time.UTC()
		a.Profile.DateOfBirth = &Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
	}
	return &a, nil
}

// SetRefreshToken overwrites the account's refresh token digest.
func (r *PostgresAccountRepository) SetRefreshToken(ctx context.Context, identity, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = $1, updated_at = now() WHERE identity = $2`,
		tokenHash, identity,
	)
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// RotateRefreshToken swaps oldHash for newHash in a single conditional UPDATE.
// Row-level locking in PostgreSQL serialises concurrent rotations of one token.
func (r *PostgresAccountRepository) RotateRefreshToken(ctx context.Context, identity, oldHash, newHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = $1, updated_at = now()
		 WHERE refresh_token_hash = $2 AND identity = $3`,
		newHash, oldHash, identity,
	)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	return requireRow(result, ErrTokenInvalid)
}

// ClearRefreshToken removes the identity's refresh token if its digest equals tokenHash.
func (r *PostgresAccountRepository) ClearRefreshToken(ctx context.Context, identity, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = NULL, updated_at = now()
		 WHERE refresh_token_hash = $1 AND identity = $2`,
		tokenHash, identity,
	)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return requireRow(result, ErrTokenInvalid)
}

// UpdateProfile replaces all profile fields of the account.
func (r *PostgresAccountRepository) UpdateProfile(ctx context.Context, identity string, p Profile) error {
	var dob sql.NullTime
	if p.DateOfBirth != nil {
		dob = sql.NullTime{Time: p.DateOfBirth.Time, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET first_name = $1, last_name = $2, date_of_birth = $3, address = $4, updated_at = now()
		 WHERE identity = $5`,
		nullString(p.FirstName), nullString(p.LastName), dob, nullString(p.Address), identity,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// AccountRepository defines the interface for account persistence.
//
// Refresh token methods take SHA-256 digests (see HashToken), never raw tokens.
// RotateRefreshToken and ClearRefreshToken must be atomic conditional writes
// on the identity's own record: they succeed only if its stored digest equals
// the presented one at the moment of the write, and return ErrTokenInvalid
// when nothing matched.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByIdentity(ctx context.Context, identity string) (*Account, error)
	SetRefreshToken(ctx context.Context, identity, tokenHash string) error
	RotateRefreshToken(ctx context.Context, identity, oldHash, newHash string) error
	ClearRefreshToken(ctx context.Context, identity, tokenHash string) error
	UpdateProfile(ctx context.Context, identity string, profile Profile) error
}

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const sqliteAccountColumns = `identity, password_hash, refresh_token_hash, first_name, last_name,
	date_of_birth, address, created_at, updated_at`

// Create inserts a new account with no profile and no refresh token.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	account.UpdatedAt = account.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (identity, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		account.Identity, account.PasswordHash, now, now,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetByIdentity retrieves an account by its identity (case-sensitive).
func (r *SQLiteAccountRepository) GetByIdentity(ctx context.Context, identity string) (*Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sqliteAccountColumns+" FROM accounts WHERE identity = ?", identity)

	var a Account
	var refresh, firstName, lastName, dob, address sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.Identity, &a.PasswordHash, &refresh, &firstName, &lastName,
		&dob, &address, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.RefreshTokenHash = refresh.String
	a.Profile.FirstName = stringPtr(firstName)
	a.Profile.LastName = stringPtr(lastName)
	a.Profile.Address = stringPtr(address)
	if dob.Valid {
		d, err := ParseDate(dob.String)
		if err != nil {
			return nil, fmt.Errorf("parsing date_of_birth: %w", err)
		}
		a.Profile.DateOfBirth = &d
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// SetRefreshToken overwrites the account's refresh token digest.
// Any previous refresh token for the account stops working.
func (r *SQLiteAccountRepository) SetRefreshToken(ctx context.Context, identity, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = ?, updated_at = ? WHERE identity = ?`,
		tokenHash, time.Now().UTC().Format(time.RFC3339), identity,
	)
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// RotateRefreshToken swaps oldHash for newHash in a single conditional UPDATE.
func (r *SQLiteAccountRepository) RotateRefreshToken(ctx context.Context, identity, oldHash, newHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = ?, updated_at = ?
		 WHERE refresh_token_hash = ? AND identity = ?`,
		newHash, time.Now().UTC().Format(time.RFC3339), oldHash, identity,
	)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	return requireRow(result, ErrTokenInvalid)
}

// ClearRefreshToken removes the identity's refresh token if its digest equals tokenHash.
func (r *SQLiteAccountRepository) ClearRefreshToken(ctx context.Context, identity, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token_hash = NULL, updated_at = ?
		 WHERE refresh_token_hash = ? AND identity = ?`,
		time.Now().UTC().Format(time.RFC3339), tokenHash, identity,
	)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return requireRow(result, ErrTokenInvalid)
}

// UpdateProfile replaces all profile fields of the account.
func (r *SQLiteAccountRepository) UpdateProfile(ctx context.Context, identity string, p Profile) error {
	var dob sql.NullString
	if p.DateOfBirth != nil {
		dob = sql.NullString{String: p.DateOfBirth.String(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET first_name = ?, last_name = ?, date_of_birth = ?, address = ?, updated_at = ?
		 WHERE identity = ?`,
		nullString(p.FirstName), nullString(p.LastName), dob, nullString(p.Address),
		time.Now().UTC().Format(time.RFC3339), identity,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return requireRow(result, ErrAccountNotFound)
}

// Helper functions.

// requireRow maps a zero-row write to notFound.
func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// isSQLiteUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY constraint violation.
func isSQLiteUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

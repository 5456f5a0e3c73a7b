package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is a single audit trail record of a lifecycle operation.
type Entry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Identity   string    `json:"identity,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	Identity string // optional: only entries for this account
	Action   string // optional: register, login, refresh, logout, profile_update
	Outcome  string // optional: success or failure
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Dialect selects placeholder and timestamp handling.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// timeArg encodes a timestamp for the created_at column.
// SQLite stores RFC 3339 text; PostgreSQL takes TIMESTAMPTZ.
func (d Dialect) timeArg(t time.Time) any {
	if d == DialectPostgres {
		return t
	}
	return t.Format(time.RFC3339)
}

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteRepository creates an audit repository on a SQLite database.
func NewSQLiteRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, dialect: DialectSQLite}
}

// NewPostgresRepository creates an audit repository on a PostgreSQL database.
func NewPostgresRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, dialect: DialectPostgres}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Second)

	p := r.dialect.placeholder
	query := fmt.Sprintf( //nolint:gosec // only placeholders are interpolated
		`INSERT INTO audit_logs (id, action, outcome, identity, reason, remote_addr, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		p(1), p(2), p(3), p(4), p(5), p(6), p(7),
	)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.Outcome,
		nullableString(entry.Identity), nullableString(entry.Reason), nullableString(entry.RemoteAddr),
		r.dialect.timeArg(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so nullable TEXT columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, column+" = "+r.dialect.placeholder(len(args)))
	}
	add("identity", filter.Identity)
	add("action", filter.Action)
	add("outcome", filter.Outcome)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions; no user input in the SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec // parameterised
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // parameterised
		`SELECT id, action, outcome, identity, reason, remote_addr, created_at
		 FROM audit_logs %s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		where, r.dialect.placeholder(len(args)+1), r.dialect.placeholder(len(args)+2),
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var identity, reason, remoteAddr sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Action, &e.Outcome,
			&identity, &reason, &remoteAddr, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		e.Identity = identity.String
		e.Reason = reason.String
		e.RemoteAddr = remoteAddr.String

		// database/sql renders TIMESTAMPTZ values as RFC 3339 when scanned into a string.
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t.UTC()

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

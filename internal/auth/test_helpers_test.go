package auth

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/migrations"
)

// testDB opens a temporary SQLite database with the embedded migrations applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context(), migrations.SQLite); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	return db.DB
}

var (
	cachedHashOnce sync.Once
	cachedHash     string
)

// testPasswordHash returns a hash of "test-password", computed once per run.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	cachedHashOnce.Do(func() {
		h, err := HashPassword("test-password")
		if err != nil {
			t.Fatalf("hashing password: %v", err)
		}
		cachedHash = h
	})
	return cachedHash
}

// seedTestAccount inserts an account with password "test-password".
func seedTestAccount(t *testing.T, repo AccountRepository, identity string) *Account {
	t.Helper()

	account := &Account{Identity: identity, PasswordHash: testPasswordHash(t)}
	if err := repo.Create(t.Context(), account); err != nil {
		t.Fatalf("creating test account %s: %v", identity, err)
	}
	return account
}

// testKeys returns two distinct 32-byte signing keys.
func testKeys() Keys {
	return Keys{
		Bearer:  []byte("bearer-secret-key-for-tests-0001"),
		Refresh: []byte("refresh-secret-key-for-tests-002"),
	}
}

// fixedClock is a settable clock for token expiry tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testCodec returns a codec on the given clock.
func testCodec(t *testing.T, clock *fixedClock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testKeys())
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	if clock != nil {
		codec = codec.WithClock(clock.Now)
	}
	return codec
}

// recordingEmitter captures events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

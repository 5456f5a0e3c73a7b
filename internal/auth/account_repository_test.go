package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// repositoryFactory returns a fresh, empty AccountRepository.
type repositoryFactory func(t *testing.T) AccountRepository

// testAccountRepository runs the behaviour every backend must share.
func testAccountRepository(t *testing.T, newRepo repositoryFactory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		account := &Account{Identity: "a@b.com", PasswordHash: testPasswordHash(t)}
		if err := repo.Create(ctx, account); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if account.CreatedAt.IsZero() {
			t.Error("Create() should set CreatedAt")
		}

		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.Identity != "a@b.com" {
			t.Errorf("Identity = %q, want %q", got.Identity, "a@b.com")
		}
		if got.PasswordHash != account.PasswordHash {
			t.Error("PasswordHash should round-trip")
		}
		if got.RefreshTokenHash != "" {
			t.Errorf("new account should have no refresh token, got %q", got.RefreshTokenHash)
		}
		if got.Profile.FirstName != nil || got.Profile.DateOfBirth != nil {
			t.Error("new account should have an empty profile")
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := newRepo(t)
		seedTestAccount(t, repo, "a@b.com")

		err := repo.Create(t.Context(), &Account{Identity: "a@b.com", PasswordHash: "x"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Create() duplicate error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("IdentityIsCaseSensitive", func(t *testing.T) {
		repo := newRepo(t)
		seedTestAccount(t, repo, "a@b.com")

		if _, err := repo.GetByIdentity(t.Context(), "A@B.com"); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("GetByIdentity() error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		repo := newRepo(t)

		if _, err := repo.GetByIdentity(t.Context(), "nobody@b.com"); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("GetByIdentity() error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("SetRefreshToken", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")

		if err := repo.SetRefreshToken(ctx, "a@b.com", HashToken("r1")); err != nil {
			t.Fatalf("SetRefreshToken() error = %v", err)
		}
		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.RefreshTokenHash != HashToken("r1") {
			t.Errorf("RefreshTokenHash = %q, want digest of r1", got.RefreshTokenHash)
		}

		if err := repo.SetRefreshToken(ctx, "nobody@b.com", HashToken("r1")); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("SetRefreshToken() unknown error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("SetReplacesPrevious", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")

		mustSetRefresh(t, repo, "a@b.com", "r1")
		mustSetRefresh(t, repo, "a@b.com", "r2")

		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), HashToken("r3")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("rotating a replaced token error = %v, want ErrTokenInvalid", err)
		}
		if err := repo.ClearRefreshToken(ctx, "a@b.com", HashToken("r1")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("clearing a replaced token error = %v, want ErrTokenInvalid", err)
		}
		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r2"), HashToken("r3")); err != nil {
			t.Errorf("rotating the live token error = %v", err)
		}
	})

	t.Run("RotateRefreshToken", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")
		mustSetRefresh(t, repo, "a@b.com", "r1")

		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), HashToken("r2")); err != nil {
			t.Fatalf("RotateRefreshToken() error = %v", err)
		}

		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.RefreshTokenHash != HashToken("r2") {
			t.Error("RefreshTokenHash should be the new digest after rotation")
		}

		// Replay of the consumed token.
		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), HashToken("r9")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("replay error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("RotateRequiresOwner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")
		seedTestAccount(t, repo, "c@d.com")
		mustSetRefresh(t, repo, "a@b.com", "r1")

		if err := repo.RotateRefreshToken(ctx, "c@d.com", HashToken("r1"), HashToken("r2")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("RotateRefreshToken() for another identity error = %v, want ErrTokenInvalid", err)
		}
		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), HashToken("r2")); err != nil {
			t.Errorf("owner rotation should still succeed, error = %v", err)
		}
	})

	t.Run("ClearRefreshToken", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")
		mustSetRefresh(t, repo, "a@b.com", "r1")

		if err := repo.ClearRefreshToken(ctx, "a@b.com", HashToken("r1")); err != nil {
			t.Fatalf("ClearRefreshToken() error = %v", err)
		}

		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.RefreshTokenHash != "" {
			t.Errorf("RefreshTokenHash = %q, want empty after clear", got.RefreshTokenHash)
		}

		if err := repo.ClearRefreshToken(ctx, "a@b.com", HashToken("r1")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("second clear error = %v, want ErrTokenInvalid", err)
		}
		if err := repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), HashToken("r2")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("rotate after clear error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("ClearRequiresOwner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")
		seedTestAccount(t, repo, "c@d.com")
		mustSetRefresh(t, repo, "a@b.com", "r1")

		if err := repo.ClearRefreshToken(ctx, "c@d.com", HashToken("r1")); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("ClearRefreshToken() for another identity error = %v, want ErrTokenInvalid", err)
		}

		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.RefreshTokenHash != HashToken("r1") {
			t.Error("a clear for another identity must leave the owner's token in place")
		}
	})

	t.Run("UpdateProfile", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")

		dob, _ := ParseDate("1990-04-01")
		profile := Profile{
			FirstName:   strPtr("Ann"),
			LastName:    strPtr("Lee"),
			DateOfBirth: &dob,
			Address:     strPtr("1 Main St"),
		}
		if err := repo.UpdateProfile(ctx, "a@b.com", profile); err != nil {
			t.Fatalf("UpdateProfile() error = %v", err)
		}

		got, err := repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.Profile.FirstName == nil || *got.Profile.FirstName != "Ann" {
			t.Errorf("FirstName = %v, want Ann", got.Profile.FirstName)
		}
		if got.Profile.LastName == nil || *got.Profile.LastName != "Lee" {
			t.Errorf("LastName = %v, want Lee", got.Profile.LastName)
		}
		if got.Profile.DateOfBirth == nil || got.Profile.DateOfBirth.String() != "1990-04-01" {
			t.Errorf("DateOfBirth = %v, want 1990-04-01", got.Profile.DateOfBirth)
		}
		if got.Profile.Address == nil || *got.Profile.Address != "1 Main St" {
			t.Errorf("Address = %v, want 1 Main St", got.Profile.Address)
		}

		// Nil fields are cleared.
		if err := repo.UpdateProfile(ctx, "a@b.com", Profile{FirstName: strPtr("Bo")}); err != nil {
			t.Fatalf("UpdateProfile() error = %v", err)
		}
		got, err = repo.GetByIdentity(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("GetByIdentity() error = %v", err)
		}
		if got.Profile.Address != nil || got.Profile.DateOfBirth != nil {
			t.Error("nil profile fields should be cleared")
		}

		if err := repo.UpdateProfile(ctx, "nobody@b.com", profile); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("UpdateProfile() unknown error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("ConcurrentRotation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		seedTestAccount(t, repo, "a@b.com")
		mustSetRefresh(t, repo, "a@b.com", "r1")

		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)

		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				newHash := HashToken("next-" + string(rune('a'+i)))
				results <- repo.RotateRefreshToken(ctx, "a@b.com", HashToken("r1"), newHash)
			}()
		}

		wg.Wait()
		close(results)

		var successes int
		for err := range results {
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenInvalid):
			default:
				t.Errorf("unexpected rotation error: %v", err)
			}
		}
		if successes != 1 {
			t.Errorf("successful rotations = %d, want exactly 1", successes)
		}
	})
}

func mustSetRefresh(t *testing.T, repo AccountRepository, identity, raw string) {
	t.Helper()
	if err := repo.SetRefreshToken(t.Context(), identity, HashToken(raw)); err != nil {
		t.Fatalf("SetRefreshToken(%s) error = %v", identity, err)
	}
}

func TestSQLiteAccountRepository(t *testing.T) {
	testAccountRepository(t, func(t *testing.T) AccountRepository {
		return NewAccountRepository(testDB(t))
	})
}

func TestSQLiteAccountRepository_ContextCancelled(t *testing.T) {
	repo := NewAccountRepository(testDB(t))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := repo.GetByIdentity(ctx, "a@b.com"); err == nil || errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByIdentity() with cancelled context error = %v, want context error", err)
	}
	if err := repo.Create(ctx, &Account{Identity: "a@b.com", PasswordHash: "x"}); err == nil {
		t.Error("Create() with cancelled context should return error")
	}
}

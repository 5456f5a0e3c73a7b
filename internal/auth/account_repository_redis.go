package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Account hash field names.
const (
	fieldIdentity     = "identity"
	fieldPasswordHash = "password_hash"
	fieldRefreshHash  = "refresh_token_hash"
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldDateOfBirth  = "date_of_birth"
	fieldAddress      = "address"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

const createAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "identity", ARGV[1], "password_hash", ARGV[2], "created_at", ARGV[3], "updated_at", ARGV[3])
return 1
`

const setRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[1], "updated_at", ARGV[2])
return 1
`

const rotateRefreshScript = `
if redis.call("HGET", KEYS[1], "refresh_token_hash") ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[2], "updated_at", ARGV[3])
return 1
`

const clearRefreshScript = `
if redis.call("HGET", KEYS[1], "refresh_token_hash") ~= ARGV[1] then
  return 0
end
redis.call("HDEL", KEYS[1], "refresh_token_hash")
redis.call("HSET", KEYS[1], "updated_at", ARGV[2])
return 1
`

const updateProfileScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  if ARGV[i + 1] == "" then
    redis.call("HDEL", KEYS[1], ARGV[i])
  else
    redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
  end
end
return 1
`

var (
	createAccountLua = redis.NewScript(createAccountScript)
	setRefreshLua    = redis.NewScript(setRefreshScript)
	rotateRefreshLua = redis.NewScript(rotateRefreshScript)
	clearRefreshLua  = redis.NewScript(clearRefreshScript)
	updateProfileLua = redis.NewScript(updateProfileScript)
)

// RedisAccountRepository implements AccountRepository on Redis.
//
// Each account is a hash at <prefix>:account:<identity> holding the profile
// and the current refresh token digest. Every write runs as a Lua script
// against that single key, so it is atomic on a standalone server and on a
// cluster alike.
type RedisAccountRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisAccountRepository creates a repository using the given key prefix.
func NewRedisAccountRepository(rdb redis.UniversalClient, prefix string) *RedisAccountRepository {
	if prefix == "" {
		prefix = "identity"
	}
	return &RedisAccountRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisAccountRepository) accountKey(identity string) string {
	return r.prefix + ":account:" + identity
}

// Create inserts a new account with no profile and no refresh token.
func (r *RedisAccountRepository) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC().Truncate(time.Second)
	account.CreatedAt = now
	account.UpdatedAt = now

	created, err := createAccountLua.Run(ctx, r.rdb,
		[]string{r.accountKey(account.Identity)},
		account.Identity, account.PasswordHash, now.Format(time.RFC3339),
	).Int()
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByIdentity retrieves an account by its identity.
func (r *RedisAccountRepository) GetByIdentity(ctx context.Context, identity string) (*Account, error) {
	fields, err := r.rdb.HGetAll(ctx, r.accountKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}

	a := &Account{
		Identity:         fields[fieldIdentity],
		PasswordHash:     fields[fieldPasswordHash],
		RefreshTokenHash: fields[fieldRefreshHash],
	}
	a.Profile.FirstName = optionalField(fields, fieldFirstName)
	a.Profile.LastName = optionalField(fields, fieldLastName)
	a.Profile.Address = optionalField(fields, fieldAddress)
	if v, ok := fields[fieldDateOfBirth]; ok {
		d, err := ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("parsing date_of_birth: %w", err)
		}
		a.Profile.DateOfBirth = &d
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, fields[fieldCreatedAt]) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, fields[fieldUpdatedAt]) //nolint:errcheck // format is controlled

	return a, nil
}

// SetRefreshToken overwrites the account's refresh token digest.
func (r *RedisAccountRepository) SetRefreshToken(ctx context.Context, identity, tokenHash string) error {
	ok, err := setRefreshLua.Run(ctx, r.rdb,
		[]string{r.accountKey(identity)},
		tokenHash, nowRFC3339(),
	).Int()
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}
	if ok == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RotateRefreshToken swaps oldHash for newHash if oldHash is the account's live token.
func (r *RedisAccountRepository) RotateRefreshToken(ctx context.Context, identity, oldHash, newHash string) error {
	ok, err := rotateRefreshLua.Run(ctx, r.rdb,
		[]string{r.accountKey(identity)},
		oldHash, newHash, nowRFC3339(),
	).Int()
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	if ok == 0 {
		return ErrTokenInvalid
	}
	return nil
}

// ClearRefreshToken removes the identity's refresh token if its digest equals tokenHash.
func (r *RedisAccountRepository) ClearRefreshToken(ctx context.Context, identity, tokenHash string) error {
	ok, err := clearRefreshLua.Run(ctx, r.rdb,
		[]string{r.accountKey(identity)},
		tokenHash, nowRFC3339(),
	).Int()
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	if ok == 0 {
		return ErrTokenInvalid
	}
	return nil
}

// UpdateProfile replaces all profile fields of the account. Nil fields are removed.
func (r *RedisAccountRepository) UpdateProfile(ctx context.Context, identity string, p Profile) error {
	var dob string
	if p.DateOfBirth != nil {
		dob = p.DateOfBirth.String()
	}

	ok, err := updateProfileLua.Run(ctx, r.rdb,
		[]string{r.accountKey(identity)},
		fieldFirstName, derefString(p.FirstName),
		fieldLastName, derefString(p.LastName),
		fieldDateOfBirth, dob,
		fieldAddress, derefString(p.Address),
		fieldUpdatedAt, nowRFC3339(),
	).Int()
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if ok == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func optionalField(fields map[string]string, name string) *string {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	return &v
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

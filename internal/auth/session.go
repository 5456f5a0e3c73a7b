package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// SessionConfig holds the default token lifetimes.
type SessionConfig struct {
	// BearerTTL is the bearer token lifetime when login does not specify one,
	// and always for refresh. Default: 600s.
	BearerTTL time.Duration

	// RefreshTTL is the refresh token lifetime when login does not specify one,
	// and always for refresh. Default: 86400s.
	RefreshTTL time.Duration
}

// SessionDeps holds the dependencies of a SessionService.
type SessionDeps struct {
	Accounts AccountRepository
	Codec    *TokenCodec
	Config   SessionConfig
	Events   EventEmitter // optional
}

// SessionService issues, rotates and terminates sessions, and guards
// owner-only profile access.
//
// Every operation is a sequential pipeline of fallible steps; the first
// failure short-circuits the rest. Validation happens before any store access.
//
// Thread Safety: safe for concurrent use. Atomicity of rotation and logout is
// delegated to the AccountRepository's conditional writes.
type SessionService struct {
	accounts AccountRepository
	codec    *TokenCodec
	cfg      SessionConfig
	events   EventEmitter
	now      func() time.Time
}

// NewSessionService creates a session service.
func NewSessionService(deps SessionDeps) (*SessionService, error) {
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}

	cfg := deps.Config
	if cfg.BearerTTL <= 0 {
		cfg.BearerTTL = DefaultBearerTTL * time.Second
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL * time.Second
	}

	events := deps.Events
	if events == nil {
		events = discardEmitter{}
	}

	return &SessionService{
		accounts: deps.Accounts,
		codec:    deps.Codec,
		cfg:      cfg,
		events:   events,
		now:      deps.Codec.now,
	}, nil
}

// Register creates a new account. It does not log the account in.
func (s *SessionService) Register(ctx context.Context, identity, password string) (account *Account, err error) {
	defer func() { s.emit(ctx, ActionRegister, identity, err) }()

	if identity == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrMalformedRequest)
	}
	if !isEmailAddress(identity) {
		return nil, fmt.Errorf("%w: email must be a valid email address", ErrMalformedRequest)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account = &Account{Identity: identity, PasswordHash: hash}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// LoginRequest carries login credentials and optional token lifetimes in seconds.
type LoginRequest struct {
	Identity   string
	Password   string
	BearerTTL  *int
	RefreshTTL *int
}

// Login verifies credentials and issues a bearer/refresh token pair.
// The new refresh token replaces any previous one for the account.
//
// Unknown accounts and wrong passwords both yield ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, req LoginRequest) (pair *TokenPair, err error) {
	defer func() { s.emit(ctx, ActionLogin, req.Identity, err) }()

	if req.Identity == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrMalformedRequest)
	}
	bearerTTL, err := ttlOrDefault(req.BearerTTL, s.cfg.BearerTTL, "bearer_ttl")
	if err != nil {
		return nil, err
	}
	refreshTTL, err := ttlOrDefault(req.RefreshTTL, s.cfg.RefreshTTL, "refresh_ttl")
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByIdentity(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	ok, err := VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	pair, refreshToken, err := s.issuePair(account.Identity, bearerTTL, refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.SetRefreshToken(ctx, account.Identity, HashToken(refreshToken)); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return pair, nil
}

// Refresh exchanges a live refresh token for a new token pair.
// The presented token is consumed: replaying it afterwards fails with ErrTokenInvalid.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	var identity string
	defer func() { s.emit(ctx, ActionRefresh, identity, err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrMalformedRequest)
	}

	claims, err := s.codec.Verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	identity = claims.Identity()

	pair, newRefresh, err := s.issuePair(identity, s.cfg.BearerTTL, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	err = s.accounts.RotateRefreshToken(ctx, identity, HashToken(refreshToken), HashToken(newRefresh))
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}
	return pair, nil
}

// Logout clears the stored refresh token equal to the presented one.
// A second logout with the same token fails with ErrTokenInvalid.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) (err error) {
	var identity string
	defer func() { s.emit(ctx, ActionLogout, identity, err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh_token is required", ErrMalformedRequest)
	}

	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return err
	}
	if s.codec.Expired(claims) {
		return ErrTokenExpired
	}

	// Claims are unverified here; attribute the event only once the store
	// has matched the token.
	if err := s.accounts.ClearRefreshToken(ctx, claims.Identity(), HashToken(refreshToken)); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return err
		}
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	identity = claims.Identity()
	return nil
}

// Authenticate verifies a bearer token and returns the identity it carries.
func (s *SessionService) Authenticate(bearerToken string) (string, error) {
	claims, err := s.codec.Verify(bearerToken, KindBearer)
	if err != nil {
		return "", err
	}
	return claims.Identity(), nil
}

// GetProfile returns the account for identity and whether viewer owns it.
// An empty viewer is anonymous.
func (s *SessionService) GetProfile(ctx context.Context, identity, viewer string) (*Account, bool, error) {
	account, err := s.accounts.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	return account, viewer != "" && viewer == identity, nil
}

// UpdateProfile replaces the profile of identity with update and returns
// the updated account. The account must exist, viewer must own it, and all
// four fields must be present and valid.
func (s *SessionService) UpdateProfile(ctx context.Context, identity, viewer string, update ProfileUpdate) (account *Account, err error) {
	defer func() { s.emit(ctx, ActionProfileUpdate, identity, err) }()

	account, err = s.accounts.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	if viewer == "" || viewer != identity {
		return nil, ErrForbidden
	}

	profile, err := update.Validate(s.now())
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateProfile(ctx, identity, profile); err != nil {
		return nil, err
	}
	account.Profile = profile
	return account, nil
}

// issuePair mints a bearer and a refresh token for identity and returns the
// pair together with the raw refresh token.
func (s *SessionService) issuePair(identity string, bearerTTL, refreshTTL time.Duration) (*TokenPair, string, error) {
	bearer, err := s.codec.Issue(identity, bearerTTL, KindBearer)
	if err != nil {
		return nil, "", err
	}
	refresh, err := s.codec.Issue(identity, refreshTTL, KindRefresh)
	if err != nil {
		return nil, "", err
	}

	return &TokenPair{
		Bearer: Token{
			Token:     bearer,
			TokenType: TokenTypeBearer,
			ExpiresIn: int(bearerTTL / time.Second),
		},
		Refresh: Token{
			Token:     refresh,
			TokenType: TokenTypeRefresh,
			ExpiresIn: int(refreshTTL / time.Second),
		},
	}, refresh, nil
}

func (s *SessionService) emit(ctx context.Context, action, identity string, err error) {
	e := Event{
		Action:     action,
		Identity:   identity,
		Outcome:    OutcomeSuccess,
		RemoteAddr: remoteAddrFromContext(ctx),
		At:         s.now().UTC(),
	}
	if err != nil {
		e.Outcome = OutcomeFailure
		e.Reason = Reason(err)
	}
	s.events.Emit(e)
}

// Reason returns a stable, non-sensitive code for an auth error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

func ttlOrDefault(seconds *int, def time.Duration, field string) (time.Duration, error) {
	if seconds == nil {
		return def, nil
	}
	if *seconds <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number of seconds", ErrMalformedRequest, field)
	}
	return time.Duration(*seconds) * time.Second, nil
}

// isEmailAddress reports whether s is a bare RFC 5322 address such as a@b.com.
func isEmailAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

package auth

import (
	"errors"
	"time"
)

// Token type labels returned to clients alongside each token.
const (
	TokenTypeBearer  = "Bearer"
	TokenTypeRefresh = "Refresh"
)

// Default token lifetimes in seconds.
const (
	DefaultBearerTTL  = 600
	DefaultRefreshTTL = 86400
)

// Account is the persistent record for a registered identity.
type Account struct {
	Identity         string    `json:"email"`
	PasswordHash     string    `json:"-"` // never serialised
	RefreshTokenHash string    `json:"-"` // never serialised; empty when no live session
	Profile          Profile   `json:"profile"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Profile holds the optional personal fields of an account.
// A nil field has never been set.
type Profile struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *Date   `json:"date_of_birth"`
	Address     *string `json:"address"`
}

// Token is a signed token as handed to the client.
type Token struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	Bearer  Token `json:"bearer_token"`
	Refresh Token `json:"refresh_token"`
}

// Sentinel errors for auth operations.
var (
	ErrMalformedRequest   = errors.New("malformed request")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAlreadyExists      = errors.New("account already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("not the resource owner")
)

package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes bearer tokens from refresh tokens.
// Each kind is signed with its own key.
type TokenKind string

const (
	KindBearer  TokenKind = "bearer"
	KindRefresh TokenKind = "refresh"
)

// Claims is the JWT payload carried by both token kinds.
// The account identity travels in the standard "sub" claim.
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"kind"`
}

// Identity returns the account identity the token was issued to.
func (c *Claims) Identity() string {
	return c.Subject
}

// Keys holds the two independent HMAC secrets.
type Keys struct {
	Bearer  []byte
	Refresh []byte
}

// TokenCodec signs and verifies bearer and refresh tokens.
//
// Thread Safety: safe for concurrent use; the codec is immutable after construction.
type TokenCodec struct {
	keys Keys
	now  func() time.Time
}

// NewTokenCodec creates a codec from the given keys.
// Both keys are required and must differ.
func NewTokenCodec(keys Keys) (*TokenCodec, error) {
	if len(keys.Bearer) == 0 || len(keys.Refresh) == 0 {
		return nil, fmt.Errorf("bearer and refresh keys are required")
	}
	if bytes.Equal(keys.Bearer, keys.Refresh) {
		return nil, fmt.Errorf("bearer and refresh keys must differ")
	}
	return &TokenCodec{keys: keys, now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// Issue signs a token of the given kind for identity, valid for ttl.
// The expiry is truncated to whole seconds.
func (c *TokenCodec) Issue(identity string, ttl time.Duration, kind TokenKind) (string, error) {
	key, err := c.key(kind)
	if err != nil {
		return "", err
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks the signature and then the expiry of a token of the given kind.
// A bad signature yields ErrTokenInvalid; a valid signature past its expiry
// yields ErrTokenExpired.
func (c *TokenCodec) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	key, err := c.key(kind)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, kind)
	}

	return claims, nil
}

// Decode reads the claims of a token without checking its signature.
// It is a shape check only and must never drive an authorisation decision.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing subject or expiry", ErrTokenInvalid)
	}
	return claims, nil
}

// Expired reports whether the claims' own expiry has passed.
func (c *TokenCodec) Expired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

func (c *TokenCodec) key(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindBearer:
		return c.keys.Bearer, nil
	case KindRefresh:
		return c.keys.Refresh, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw refresh tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

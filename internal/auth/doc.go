// Package auth provides the credential and session lifecycle for identityd.
//
// It implements:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - HS256 bearer and refresh tokens signed with two independent keys
//   - Refresh token rotation with a single live refresh token per account
//   - Logout by clearing the stored refresh token
//   - Owner-only profile reads and updates
//
// Refresh tokens are never stored in the clear. The account row holds the
// SHA-256 digest of the current refresh token, and refresh/logout locate the
// row by the digest of the presented token, not by its decoded claims.
//
// Three AccountRepository backends are provided (SQLite, PostgreSQL, Redis).
// Each performs rotation and logout as a single conditional write so two
// concurrent refreshes of the same token cannot both succeed.
package auth

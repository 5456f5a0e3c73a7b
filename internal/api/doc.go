// Package api implements the HTTP API for identityd.
//
// This package provides:
//   - Registration, login, refresh and logout endpoints
//   - Profile read (optional auth) and update (owner only)
//   - The caller's own audit trail
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Bearer token middleware in required and optional modes
//
// All routes live under /api/v1. Errors are returned as
// {"status":int,"code":string,"message":string}; store failures are
// reported as internal_error without detail.
package api

// Package audit persists session lifecycle events to the audit_logs table
// and serves them back as paginated, per-account activity history.
//
// The same repository runs against SQLite and PostgreSQL; only the
// placeholder syntax and timestamp encoding differ between the two.
package audit

// Package database provides SQLite connectivity for the identity service.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Forward-only schema migrations read from an fs.FS
//   - Connection pool sizing for SQLite's single writer
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Password hashes and refresh token digests are the only credential
//     material ever written
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.SQLite); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database

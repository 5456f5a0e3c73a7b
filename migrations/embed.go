// Package migrations embeds the SQL schema for both SQL account stores so
// the service can migrate without the files present on disk.
//
//   - SQLite: paired YYYYMMDD_HHMMSS_name.up.sql / .down.sql files applied by
//     internal/infrastructure/database.
//   - Postgres: goose-annotated files applied by internal/infrastructure/postgres.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// SQLite holds the SQLite migrations at its root.
var SQLite = mustSub(sqliteFS, "sqlite")

// Postgres holds the goose migrations for PostgreSQL at its root.
var Postgres = mustSub(postgresFS, "postgres")

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err) // unreachable: dir is a literal matched by the embed pattern
	}
	return sub
}

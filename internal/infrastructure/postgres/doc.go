// Package postgres opens PostgreSQL connections through the pgx database/sql
// driver and applies the goose migrations embedded in the migrations package.
package postgres

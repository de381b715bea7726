// Package postgres implements the store using pgx/v5 with raw SQL.
// Every mutation is a single statement, so lease takeover and release
// are atomic without explicit transactions. Schema is managed through
// embedded SQL migrations.
package postgres

// Package bunstore implements the store using the Bun ORM with the
// PostgreSQL dialect. Mutations compile to the same single-statement
// SQL as the pgx backend, so the atomicity guarantees are identical.
package bunstore

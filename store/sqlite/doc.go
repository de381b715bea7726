// Package sqlite implements the store on a local SQLite file using
// database/sql with the mattn/go-sqlite3 driver. Intended for single
// machine deployments and tests; a fleet sharing one SQLite file still
// gets correct mutual exclusion because every mutation is one statement
// and SQLite serializes writers.
package sqlite

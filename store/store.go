// Package store defines the aggregate persistence interface. The
// instance and lease subsystems each define their own store interface;
// the composite Store composes them. Backends: Postgres, Bun, SQLite,
// Redis, and Memory.
package store

import (
	"context"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// Store is the aggregate persistence interface. A single backend
// implements both subsystem stores plus lifecycle.
type Store interface {
	instance.Store
	lease.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity. The coordinator probes this once
	// at startup and refuses to register when it fails.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

package lease

import (
	"context"
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
)

// Store defines the persistence contract for channel leases. Every
// mutation is a single atomic statement keyed by channel id; no
// multi-row transaction is ever required.
type Store interface {
	// InsertLease atomically creates l. Uniqueness on channel id means
	// this succeeds only when no lease currently exists; a duplicate key
	// returns twitchmon.ErrLeaseHeld. ttl is the stale threshold, used by
	// expiry-based backends (Redis) to bound the key's lifetime; SQL
	// backends ignore it.
	InsertLease(ctx context.Context, l *Lease, ttl time.Duration) error

	// TakeoverLease atomically reassigns the lease on channelID to
	// instanceID, resetting acquired-at and last-heartbeat, but only
	// where the current owner is instanceID itself or the lease's last
	// heartbeat is older than staleAfter. Returns true when the row was
	// reassigned, false when a live peer holds it.
	TakeoverLease(ctx context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error)

	// ReleaseLease deletes the lease scoped to (channelID, instanceID).
	// Returns twitchmon.ErrLeaseNotHeld when no matching row exists.
	ReleaseLease(ctx context.Context, channelID string, instanceID id.InstanceID) error

	// ReleaseInstanceLeases deletes every lease owned by instanceID,
	// returning the number removed.
	ReleaseInstanceLeases(ctx context.Context, instanceID id.InstanceID) (int64, error)

	// RefreshLeases updates last-heartbeat to now on every lease scoped
	// by instanceID and a channel in channelIDs, in one conditional
	// update. Returns the number of rows refreshed; a refresh of a lease
	// lost to takeover matches zero rows and is not an error.
	RefreshLeases(ctx context.Context, instanceID id.InstanceID, channelIDs []string, ttl time.Duration) (int64, error)

	// ListLeases returns all current leases.
	ListLeases(ctx context.Context) ([]*Lease, error)

	// DeleteExpiredLeases removes every lease whose last heartbeat is
	// older than olderThan, returning the number removed. Idempotent;
	// safe to run concurrently from any process.
	DeleteExpiredLeases(ctx context.Context, olderThan time.Duration) (int64, error)
}

package instance

import (
	"context"
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
)

// Store defines the persistence contract for the instance registry.
// Every mutation is a single atomic statement keyed by instance id.
type Store interface {
	// PutInstance inserts or replaces the registry row for inst.
	PutInstance(ctx context.Context, inst *Instance) error

	// DeleteInstance removes the registry row for instanceID.
	// Returns twitchmon.ErrInstanceNotFound when no row exists.
	DeleteInstance(ctx context.Context, instanceID id.InstanceID) error

	// HeartbeatInstance refreshes last-heartbeat to now and records the
	// current channel count, proving the instance is still alive.
	// Returns twitchmon.ErrInstanceNotFound when no row exists.
	HeartbeatInstance(ctx context.Context, instanceID id.InstanceID, channelCount int) error

	// ListInstances returns all registered instances.
	ListInstances(ctx context.Context) ([]*Instance, error)

	// DeleteExpiredInstances removes every instance whose last heartbeat
	// is older than olderThan, returning the number removed. Idempotent;
	// safe to run concurrently from any process.
	DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error)
}

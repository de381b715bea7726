// Package hook defines the extension system for the coordinator.
// Extensions are notified of ownership lifecycle events (lease acquired,
// released, acquisition rejected, sweep completed) and can react to
// them, for example by recording metrics or logging.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import "context"

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// LeaseAcquired is called after this instance acquires a channel, either
// by fresh insert or by takeover of a stale lease.
type LeaseAcquired interface {
	OnLeaseAcquired(ctx context.Context, channelID string, takeover bool) error
}

// AcquireRejected is called when an acquisition attempt returns false:
// the local capacity limit was hit ("capacity") or a live peer holds the
// lease ("contention").
type AcquireRejected interface {
	OnAcquireRejected(ctx context.Context, channelID, reason string) error
}

// LeaseReleased is called after this instance voluntarily releases a
// channel.
type LeaseReleased interface {
	OnLeaseReleased(ctx context.Context, channelID string) error
}

// SweepCompleted is called after a cleanup sweep of expired leases and
// instances.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, leasesRemoved, instancesRemoved int64) error
}

// Shutdown is called during graceful coordinator shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

package twitchmon

import "time"

// Config holds tuning for the listener-ownership coordinator.
type Config struct {
	// Distributed enables store-backed coordination. When false the
	// process runs standalone: it self-assigns every channel up to
	// MaxChannels and never touches the store.
	Distributed bool

	// HeartbeatInterval is how often the coordinator refreshes its own
	// instance row and the leases it holds.
	HeartbeatInterval time.Duration

	// StaleThreshold is the heartbeat age beyond which a lease or
	// instance is considered dead and eligible for takeover and cleanup.
	StaleThreshold time.Duration

	// MaxChannels is the admission-control limit: the maximum number of
	// channels a single instance will accept.
	MaxChannels int

	// CleanupEvery is the number of heartbeat ticks between cleanup
	// sweeps of expired leases and instances.
	CleanupEvery int

	// HealthTimeout is the heartbeat age at which an instance is reported
	// unhealthy by status queries. Zero derives 2x HeartbeatInterval,
	// tolerating one missed beat.
	HealthTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Distributed:       true,
		HeartbeatInterval: 10 * time.Second,
		StaleThreshold:    30 * time.Second,
		MaxChannels:       100,
		CleanupEvery:      3,
	}
}

// Normalized fills every unset numeric field with its default, so a
// hand-built Config that only sets the fields the caller cares about
// cannot produce a zero ticker interval or a zero admission limit.
func (c Config) Normalized() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = def.StaleThreshold
	}
	if c.MaxChannels <= 0 {
		c.MaxChannels = def.MaxChannels
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = def.CleanupEvery
	}
	return c
}

// EffectiveHealthTimeout resolves HealthTimeout, deriving it from the
// heartbeat interval when unset.
func (c Config) EffectiveHealthTimeout() time.Duration {
	if c.HealthTimeout > 0 {
		return c.HealthTimeout
	}
	return 2 * c.HeartbeatInterval
}

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/hook"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// Store is the persistence contract the coordinator needs: the instance
// registry, the lease table, and a connectivity probe. Any store.Store
// backend satisfies it.
type Store interface {
	instance.Store
	lease.Store

	Ping(ctx context.Context) error
}

// Coordinator divides listener ownership across a fleet of instances
// sharing one store. It holds the only business logic in the module:
// lifecycle, the acquisition protocol, the heartbeat/cleanup loop, and
// read-only status queries.
//
// All methods are safe for concurrent use. The local ownership set is a
// cache of belief: it is exclusively owned by this process and can
// diverge from the lease table when a peer takes over a stale channel;
// the store is always the arbiter of truth.
type Coordinator struct {
	store    Store
	cfg      twitchmon.Config
	logger   *slog.Logger
	hooks    *hook.Registry
	hostname string

	// instanceID is generated once per Coordinator and identifies this
	// process in the registry for its whole lifetime.
	instanceID id.InstanceID

	// lifeMu serializes Start and Stop end to end, store calls
	// included, so a Start racing a Stop cannot register between the
	// old cycle's lease release and instance delete.
	lifeMu sync.Mutex

	mu      sync.Mutex
	running bool
	owned   map[string]struct{}
	// pending holds channels with an acquisition in flight. They count
	// against MaxChannels from the moment the guard admits them, so
	// concurrent TryAcquire calls cannot overshoot the limit while one
	// of them waits on the store.
	pending map[string]struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig replaces the default configuration.
func WithConfig(cfg twitchmon.Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithHostname overrides the hostname recorded in the instance registry.
func WithHostname(h string) Option {
	return func(c *Coordinator) { c.hostname = h }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e hook.Extension) Option {
	return func(c *Coordinator) { c.hooks.Register(e) }
}

// New creates a Coordinator backed by st. The instance identity is
// generated here and never changes for the life of the value.
func New(st Store, opts ...Option) *Coordinator {
	host, _ := os.Hostname() //nolint:errcheck // empty hostname is acceptable

	c := &Coordinator{
		store:      st,
		cfg:        twitchmon.DefaultConfig(),
		logger:     slog.Default(),
		hostname:   host,
		instanceID: id.NewInstanceID(),
		owned:      make(map[string]struct{}),
		pending:    make(map[string]struct{}),
	}
	c.hooks = hook.NewRegistry(c.logger)
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = c.cfg.Normalized()
	return c
}

// InstanceID returns this process's registry identity.
func (c *Coordinator) InstanceID() id.InstanceID { return c.instanceID }

// Channels returns the channels this instance currently believes it
// owns, sorted.
func (c *Coordinator) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.owned))
	for ch := range c.owned {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Start registers this instance and begins the heartbeat loop. It is
// idempotent: calling Start on a running coordinator is a no-op. The
// store is probed first; on failure the instance is never registered and
// the error is returned (fail closed).
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return nil
	}

	if !c.cfg.Distributed {
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
		c.logger.Info("coordinator started in standalone mode",
			slog.String("instance_id", c.instanceID.String()),
		)
		return nil
	}

	if c.store == nil {
		return twitchmon.ErrNoStore
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("coordinator: store unreachable: %w", err)
	}

	now := time.Now().UTC()
	inst := &instance.Instance{
		ID:            c.instanceID,
		Hostname:      c.hostname,
		ChannelCount:  0,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	if err := c.store.PutInstance(ctx, inst); err != nil {
		return fmt.Errorf("coordinator: register instance: %w", err)
	}

	stopCh := make(chan struct{})
	c.wg.Add(1)
	go c.heartbeatLoop(stopCh)

	c.mu.Lock()
	c.stopCh = stopCh
	c.running = true
	c.mu.Unlock()
	c.logger.Info("coordinator started",
		slog.String("instance_id", c.instanceID.String()),
		slog.Duration("heartbeat_interval", c.cfg.HeartbeatInterval),
		slog.Duration("stale_threshold", c.cfg.StaleThreshold),
	)
	return nil
}

// Stop cancels the heartbeat loop, releases every lease this instance
// owns, deregisters it, and clears the local ownership set. Idempotent;
// Stop on an idle coordinator does nothing and touches no store.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stopCh := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		c.wg.Wait()
	}

	if c.cfg.Distributed {
		if n, err := c.store.ReleaseInstanceLeases(ctx, c.instanceID); err != nil {
			c.logger.Error("release leases on stop failed",
				slog.String("instance_id", c.instanceID.String()),
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			c.logger.Info("released leases", slog.Int64("count", n))
		}

		if err := c.store.DeleteInstance(ctx, c.instanceID); err != nil &&
			!errors.Is(err, twitchmon.ErrInstanceNotFound) {
			c.logger.Error("deregister instance failed",
				slog.String("instance_id", c.instanceID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	c.mu.Lock()
	c.owned = make(map[string]struct{})
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	c.hooks.EmitShutdown(ctx)
	c.logger.Info("coordinator stopped", slog.String("instance_id", c.instanceID.String()))
	return nil
}

// TryAcquire attempts to claim channelID for this instance. It returns
// true when the channel is owned locally afterwards and false otherwise.
// An in-flight acquisition reserves its capacity slot, so any number of
// concurrent calls admit at most MaxChannels channels in total.
// It never returns an error: callers probe candidate channels in a loop
// and one store hiccup must not abort the batch, so every failure is
// logged and absorbed as false.
func (c *Coordinator) TryAcquire(ctx context.Context, channelID string) bool {
	c.mu.Lock()
	if _, ok := c.owned[channelID]; ok {
		c.mu.Unlock()
		return true
	}
	if _, ok := c.pending[channelID]; ok {
		// Another goroutine is mid-claim on this channel; its outcome
		// will be visible to the caller's next probe.
		c.mu.Unlock()
		return false
	}
	if len(c.owned)+len(c.pending) >= c.cfg.MaxChannels {
		c.mu.Unlock()
		c.logger.Warn("channel capacity reached, refusing acquisition",
			slog.String("channel_id", channelID),
			slog.Int("max_channels", c.cfg.MaxChannels),
		)
		c.hooks.EmitAcquireRejected(ctx, channelID, "capacity")
		return false
	}
	if !c.cfg.Distributed {
		c.owned[channelID] = struct{}{}
		c.mu.Unlock()
		c.hooks.EmitLeaseAcquired(ctx, channelID, false)
		return true
	}
	// Reserve the slot before the store round-trip; settle commits it
	// into the owned set or frees it again.
	c.pending[channelID] = struct{}{}
	c.mu.Unlock()

	now := time.Now().UTC()
	takeover := false

	err := c.store.InsertLease(ctx, lease.New(channelID, c.instanceID, now), c.cfg.StaleThreshold)
	switch {
	case err == nil:
		// Fresh claim.
	case errors.Is(err, twitchmon.ErrLeaseHeld):
		// A lease row exists. One atomic conditional update reassigns it
		// to us where the owner is already us or its heartbeat is past
		// the stale threshold; the predicate and the write are a single
		// store operation, so racing instances cannot both win.
		took, terr := c.store.TakeoverLease(ctx, channelID, c.instanceID, c.cfg.StaleThreshold)
		if terr != nil {
			c.logger.Error("lease takeover failed",
				slog.String("channel_id", channelID),
				slog.String("error", terr.Error()),
			)
			c.settle(channelID, false)
			return false
		}
		if !took {
			c.logger.Debug("channel held by a live peer",
				slog.String("channel_id", channelID),
			)
			c.hooks.EmitAcquireRejected(ctx, channelID, "contention")
			c.settle(channelID, false)
			return false
		}
		takeover = true
	default:
		c.logger.Error("lease insert failed",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		c.settle(channelID, false)
		return false
	}

	c.settle(channelID, true)
	c.hooks.EmitLeaseAcquired(ctx, channelID, takeover)
	c.logger.Info("channel acquired",
		slog.String("channel_id", channelID),
		slog.Bool("takeover", takeover),
	)
	return true
}

// Release voluntarily gives up channelID. On store failure the channel
// stays in the local set: over-claiming is recoverable (the lease row
// still names us and a retry or Stop will clear it), while forgetting a
// channel that is still locked in the store would let a caller's retry
// open a duplicate listener.
func (c *Coordinator) Release(ctx context.Context, channelID string) {
	c.mu.Lock()
	_, ok := c.owned[channelID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if c.cfg.Distributed {
		err := c.store.ReleaseLease(ctx, channelID, c.instanceID)
		switch {
		case err == nil:
		case errors.Is(err, twitchmon.ErrLeaseNotHeld):
			// The row is gone or reassigned; the store's truth wins and
			// the local set reconciles.
			c.logger.Warn("lease already released or taken over",
				slog.String("channel_id", channelID),
			)
		default:
			c.logger.Error("lease release failed, keeping channel claimed",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	c.mu.Lock()
	delete(c.owned, channelID)
	c.mu.Unlock()

	c.hooks.EmitLeaseReleased(ctx, channelID)
	c.logger.Info("channel released", slog.String("channel_id", channelID))
}

// settle resolves a pending reservation: on success the channel moves
// into the owned set, on failure its capacity slot is freed.
func (c *Coordinator) settle(channelID string, acquired bool) {
	c.mu.Lock()
	delete(c.pending, channelID)
	if acquired {
		c.owned[channelID] = struct{}{}
	}
	c.mu.Unlock()
}

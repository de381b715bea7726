package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
)

// heartbeatLoop renews liveness on every tick and garbage-collects
// abandoned leases and instances on a coarser cadence. It runs as one
// goroutine for the life of a Start/Stop cycle.
func (c *Coordinator) heartbeatLoop(stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx := context.Background()
			c.beat(ctx)

			ticks++
			if c.cfg.CleanupEvery > 0 && ticks%c.cfg.CleanupEvery == 0 {
				c.CleanupExpired(ctx)
			}
		}
	}
}

// beat refreshes this instance's registry row and the heartbeat on every
// lease it holds. Failures are logged and ignored: a missed beat just
// makes this instance look unhealthy until the next successful tick.
func (c *Coordinator) beat(ctx context.Context) {
	channels := c.Channels()

	err := c.store.HeartbeatInstance(ctx, c.instanceID, len(channels))
	if errors.Is(err, twitchmon.ErrInstanceNotFound) {
		// A peer's sweep reaped our row while we were stalled.
		// Re-register rather than heartbeating into nothing forever.
		now := time.Now().UTC()
		err = c.store.PutInstance(ctx, &instance.Instance{
			ID:            c.instanceID,
			Hostname:      c.hostname,
			ChannelCount:  len(channels),
			RegisteredAt:  now,
			LastHeartbeat: now,
		})
		if err == nil {
			c.logger.Info("re-registered instance after sweep",
				slog.String("instance_id", c.instanceID.String()),
			)
		}
	}
	if err != nil {
		c.logger.Warn("instance heartbeat failed",
			slog.String("instance_id", c.instanceID.String()),
			slog.String("error", err.Error()),
		)
	}

	if len(channels) == 0 {
		return
	}
	if _, err := c.store.RefreshLeases(ctx, c.instanceID, channels, c.cfg.StaleThreshold); err != nil {
		c.logger.Warn("lease refresh failed",
			slog.String("instance_id", c.instanceID.String()),
			slog.Int("channels", len(channels)),
			slog.String("error", err.Error()),
		)
	}
}

// CleanupExpired bulk-deletes every lease and instance whose heartbeat
// is older than the stale threshold, reclaiming what crashed instances
// abandoned. Delete-where-older-than is idempotent, so any number of
// instances may sweep concurrently. Failures are logged and swallowed;
// the next scheduled pass retries.
func (c *Coordinator) CleanupExpired(ctx context.Context) (leasesRemoved, instancesRemoved int64) {
	if !c.cfg.Distributed {
		return 0, 0
	}

	var err error
	leasesRemoved, err = c.store.DeleteExpiredLeases(ctx, c.cfg.StaleThreshold)
	if err != nil {
		c.logger.Warn("expired lease sweep failed", slog.String("error", err.Error()))
	}
	instancesRemoved, err = c.store.DeleteExpiredInstances(ctx, c.cfg.StaleThreshold)
	if err != nil {
		c.logger.Warn("expired instance sweep failed", slog.String("error", err.Error()))
	}

	if leasesRemoved > 0 || instancesRemoved > 0 {
		c.logger.Info("cleaned up expired rows",
			slog.Int64("leases", leasesRemoved),
			slog.Int64("instances", instancesRemoved),
		)
	}
	c.hooks.EmitSweepCompleted(ctx, leasesRemoved, instancesRemoved)
	return leasesRemoved, instancesRemoved
}

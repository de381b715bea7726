package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// Instances returns the operator-facing view of every registered
// instance. It never fails: a store error is logged and an empty slice
// returned, so an outage shows up as an empty status page rather than an
// exception on it.
func (c *Coordinator) Instances(ctx context.Context) []instance.Status {
	now := time.Now().UTC()
	healthTimeout := c.cfg.EffectiveHealthTimeout()

	if !c.cfg.Distributed {
		// Standalone: the local view is the whole fleet.
		return []instance.Status{{
			ID:            c.instanceID,
			Hostname:      c.hostname,
			ChannelCount:  len(c.Channels()),
			LastHeartbeat: now,
			Healthy:       true,
		}}
	}

	rows, err := c.store.ListInstances(ctx)
	if err != nil {
		c.logger.Error("list instances failed", slog.String("error", err.Error()))
		return []instance.Status{}
	}

	statuses := make([]instance.Status, 0, len(rows))
	for _, inst := range rows {
		statuses = append(statuses, instance.StatusOf(inst, now, healthTimeout))
	}
	return statuses
}

// Locks returns every current channel lease. Empty slice on store
// failure, same rationale as Instances.
func (c *Coordinator) Locks(ctx context.Context) []*lease.Lease {
	if !c.cfg.Distributed {
		now := time.Now().UTC()
		channels := c.Channels()
		locks := make([]*lease.Lease, 0, len(channels))
		for _, ch := range channels {
			locks = append(locks, lease.New(ch, c.instanceID, now))
		}
		return locks
	}

	locks, err := c.store.ListLeases(ctx)
	if err != nil {
		c.logger.Error("list leases failed", slog.String("error", err.Error()))
		return []*lease.Lease{}
	}
	return locks
}

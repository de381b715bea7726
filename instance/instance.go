// Package instance defines the coordinator instance registry: one row per
// live listener process, refreshed by heartbeat and reaped once stale.
package instance

import (
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
)

// Instance is one listener process registered in the shared store.
type Instance struct {
	ID            id.InstanceID `json:"id"`
	Hostname      string        `json:"hostname"`
	ChannelCount  int           `json:"channel_count"`
	RegisteredAt  time.Time     `json:"registered_at"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
}

// Status is the operator-facing view of an Instance, with liveness
// derived from heartbeat age.
type Status struct {
	ID            id.InstanceID `json:"id"`
	Hostname      string        `json:"hostname"`
	ChannelCount  int           `json:"channel_count"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	Healthy       bool          `json:"healthy"`
}

// StatusOf derives a Status from an Instance row. An instance is healthy
// while its last heartbeat is younger than healthTimeout.
func StatusOf(inst *Instance, now time.Time, healthTimeout time.Duration) Status {
	return Status{
		ID:            inst.ID,
		Hostname:      inst.Hostname,
		ChannelCount:  inst.ChannelCount,
		LastHeartbeat: inst.LastHeartbeat,
		Healthy:       now.Sub(inst.LastHeartbeat) < healthTimeout,
	}
}

// Package lease defines the channel lock table: one row per Twitch
// channel asserting a renewable, temporary claim by a single instance.
//
// The row's uniqueness on channel id is the whole mutual-exclusion
// guarantee. Takeover of a stale lease happens through one atomic
// conditional update, so two instances racing for the same dead owner's
// channel cannot both win: the first write consumes the stale row and the
// second's predicate matches nothing.
package lease

import (
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
)

// Lease is one instance's claim on one channel.
type Lease struct {
	ChannelID     string        `json:"channel_id"`
	InstanceID    id.InstanceID `json:"instance_id"`
	AcquiredAt    time.Time     `json:"acquired_at"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
}

// New returns a fresh lease claiming channelID for instanceID, with
// acquisition and heartbeat timestamps set to now.
func New(channelID string, instanceID id.InstanceID, now time.Time) *Lease {
	return &Lease{
		ChannelID:     channelID,
		InstanceID:    instanceID,
		AcquiredAt:    now,
		LastHeartbeat: now,
	}
}

package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

type instanceModel struct {
	bun.BaseModel `bun:"table:twitchmon_instances"`

	ID            string    `bun:"id,pk"`
	Hostname      string    `bun:"hostname,notnull,default:''"`
	ChannelCount  int       `bun:"channel_count,notnull,default:0"`
	RegisteredAt  time.Time `bun:"registered_at,notnull,default:current_timestamp"`
	LastHeartbeat time.Time `bun:"last_heartbeat,notnull,default:current_timestamp"`
}

func toInstanceModel(inst *instance.Instance) *instanceModel {
	return &instanceModel{
		ID:            inst.ID.String(),
		Hostname:      inst.Hostname,
		ChannelCount:  inst.ChannelCount,
		RegisteredAt:  inst.RegisteredAt,
		LastHeartbeat: inst.LastHeartbeat,
	}
}

func fromInstanceModel(m *instanceModel) (*instance.Instance, error) {
	parsedID, err := id.ParseInstanceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/bun: parse instance id %q: %w", m.ID, err)
	}
	return &instance.Instance{
		ID:            parsedID,
		Hostname:      m.Hostname,
		ChannelCount:  m.ChannelCount,
		RegisteredAt:  m.RegisteredAt,
		LastHeartbeat: m.LastHeartbeat,
	}, nil
}

type leaseModel struct {
	bun.BaseModel `bun:"table:twitchmon_leases"`

	ChannelID     string    `bun:"channel_id,pk"`
	InstanceID    string    `bun:"instance_id,notnull"`
	AcquiredAt    time.Time `bun:"acquired_at,notnull,default:current_timestamp"`
	LastHeartbeat time.Time `bun:"last_heartbeat,notnull,default:current_timestamp"`
}

func toLeaseModel(l *lease.Lease) *leaseModel {
	return &leaseModel{
		ChannelID:     l.ChannelID,
		InstanceID:    l.InstanceID.String(),
		AcquiredAt:    l.AcquiredAt,
		LastHeartbeat: l.LastHeartbeat,
	}
}

func fromLeaseModel(m *leaseModel) (*lease.Lease, error) {
	parsedID, err := id.ParseInstanceID(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/bun: parse instance id %q: %w", m.InstanceID, err)
	}
	return &lease.Lease{
		ChannelID:     m.ChannelID,
		InstanceID:    parsedID,
		AcquiredAt:    m.AcquiredAt,
		LastHeartbeat: m.LastHeartbeat,
	}, nil
}

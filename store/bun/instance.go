package bunstore

import (
	"context"
	"fmt"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
)

// PutInstance inserts or replaces the registry row for inst.
func (s *Store) PutInstance(ctx context.Context, inst *instance.Instance) error {
	m := toInstanceModel(inst)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("hostname = EXCLUDED.hostname").
		Set("channel_count = EXCLUDED.channel_count").
		Set("last_heartbeat = EXCLUDED.last_heartbeat").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/bun: put instance: %w", err)
	}
	return nil
}

// DeleteInstance removes an instance from the registry.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.NewDelete().
		TableExpr("twitchmon_instances").
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/bun: delete instance: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// HeartbeatInstance refreshes the last-heartbeat timestamp and channel
// count for an instance.
func (s *Store) HeartbeatInstance(ctx context.Context, instanceID id.InstanceID, channelCount int) error {
	res, err := s.db.NewUpdate().
		Model((*instanceModel)(nil)).
		Set("last_heartbeat = NOW()").
		Set("channel_count = ?", channelCount).
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/bun: heartbeat instance: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// ListInstances returns all registered instances.
func (s *Store) ListInstances(ctx context.Context) ([]*instance.Instance, error) {
	var models []instanceModel
	err := s.db.NewSelect().Model(&models).
		Order("registered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/bun: list instances: %w", err)
	}

	instances := make([]*instance.Instance, 0, len(models))
	for i := range models {
		inst, convErr := fromInstanceModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("twitchmon/bun: list convert: %w", convErr)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// DeleteExpiredInstances removes every instance whose last heartbeat is
// older than olderThan.
func (s *Store) DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("twitchmon_instances").
		Where("last_heartbeat < NOW() - ?::interval", olderThan.String()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/bun: delete expired instances: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

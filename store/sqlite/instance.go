package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO twitchmon_instances (id, hostname, channel_count, registered_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hostname = excluded.hostname,
			channel_count = excluded.channel_count,
			last_heartbeat = excluded.last_heartbeat`,
		inst.ID.String(), inst.Hostname, inst.ChannelCount,
		inst.RegisteredAt.UTC(), inst.LastHeartbeat.UTC(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: put instance: %w", err)
	}
	return nil
}

// DeleteInstance removes an instance from the registry.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM twitchmon_instances WHERE id = ?`,
		instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: delete instance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: delete instance rows: %w", err)
	}
	if rows == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// HeartbeatInstance refreshes the last-heartbeat timestamp and channel
// count for an instance.
func (s *Store) HeartbeatInstance(ctx context.Context, instanceID id.InstanceID, channelCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE twitchmon_instances SET last_heartbeat = ?, channel_count = ? WHERE id = ?`,
		time.Now().UTC(), channelCount, instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: heartbeat instance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: heartbeat instance rows: %w", err)
	}
	if rows == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// ListInstances returns all registered instances.
func (s *Store) ListInstances(ctx context.Context) ([]*instance.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hostname, channel_count, registered_at, last_heartbeat
		FROM twitchmon_instances
		ORDER BY registered_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/sqlite: list instances: %w", err)
	}
	defer rows.Close()

	var instances []*instance.Instance
	for rows.Next() {
		var (
			inst  instance.Instance
			idStr string
		)
		if err = rows.Scan(&idStr, &inst.Hostname, &inst.ChannelCount, &inst.RegisteredAt, &inst.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("twitchmon/sqlite: scan instance row: %w", err)
		}
		parsedID, parseErr := id.ParseInstanceID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("twitchmon/sqlite: parse instance id %q: %w", idStr, parseErr)
		}
		inst.ID = parsedID
		instances = append(instances, &inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("twitchmon/sqlite: iterate instance rows: %w", err)
	}
	return instances, nil
}

// DeleteExpiredInstances removes every instance whose last heartbeat is
// older than olderThan.
func (s *Store) DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM twitchmon_instances WHERE last_heartbeat < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: delete expired instances: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: delete expired instances rows: %w", err)
	}
	return rows, nil
}

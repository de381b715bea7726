package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
)

// PutInstance inserts or replaces the registry row for inst.
func (s *Store) PutInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO twitchmon_instances (
			id, hostname, channel_count, registered_at, last_heartbeat
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			channel_count = EXCLUDED.channel_count,
			last_heartbeat = EXCLUDED.last_heartbeat`,
		inst.ID.String(), inst.Hostname, inst.ChannelCount,
		inst.RegisteredAt, inst.LastHeartbeat,
	)
	if err != nil {
		return fmt.Errorf("twitchmon/postgres: put instance: %w", err)
	}
	return nil
}

// DeleteInstance removes an instance from the registry.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM twitchmon_instances WHERE id = $1`,
		instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/postgres: delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// HeartbeatInstance refreshes the last-heartbeat timestamp and channel
// count for an instance.
func (s *Store) HeartbeatInstance(ctx context.Context, instanceID id.InstanceID, channelCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE twitchmon_instances SET last_heartbeat = NOW(), channel_count = $2 WHERE id = $1`,
		instanceID.String(), channelCount,
	)
	if err != nil {
		return fmt.Errorf("twitchmon/postgres: heartbeat instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return twitchmon.ErrInstanceNotFound
	}
	return nil
}

// ListInstances returns all registered instances.
func (s *Store) ListInstances(ctx context.Context) ([]*instance.Instance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hostname, channel_count, registered_at, last_heartbeat
		FROM twitchmon_instances
		ORDER BY registered_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/postgres: list instances: %w", err)
	}
	defer rows.Close()

	var instances []*instance.Instance
	for rows.Next() {
		inst, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("twitchmon/postgres: scan instance row: %w", scanErr)
		}
		instances = append(instances, inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("twitchmon/postgres: iterate instance rows: %w", err)
	}
	return instances, nil
}

// DeleteExpiredInstances removes every instance whose last heartbeat is
// older than olderThan.
func (s *Store) DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM twitchmon_instances WHERE last_heartbeat < NOW() - $1::interval`,
		olderThan.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/postgres: delete expired instances: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanInstance scans a single instance row.
func scanInstance(row pgx.Row) (*instance.Instance, error) {
	var (
		inst  instance.Instance
		idStr string
	)
	err := row.Scan(
		&idStr, &inst.Hostname, &inst.ChannelCount,
		&inst.RegisteredAt, &inst.LastHeartbeat,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseInstanceID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("twitchmon/postgres: parse instance id %q: %w", idStr, parseErr)
	}
	inst.ID = parsedID

	return &inst, nil
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
)

// PutInstance inserts or replaces the registry entry for inst.
func (s *Store) PutInstance(ctx context.Context, inst *instance.Instance) error {
	instID := inst.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, instanceKey(instID), instanceToMap(inst))
	pipe.SAdd(ctx, instanceIDsKey, instID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/redis: put instance: %w", err)
	}
	return nil
}

// DeleteInstance removes an instance from the registry.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	instID := instanceID.String()
	key := instanceKey(instID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("twitchmon/redis: delete instance exists: %w", err)
	}
	if exists == 0 {
		return twitchmon.ErrInstanceNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, instanceIDsKey, instID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/redis: delete instance: %w", err)
	}
	return nil
}

// HeartbeatInstance updates the last-heartbeat timestamp and channel
// count for an instance.
func (s *Store) HeartbeatInstance(ctx context.Context, instanceID id.InstanceID, channelCount int) error {
	key := instanceKey(instanceID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("twitchmon/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return twitchmon.ErrInstanceNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_heartbeat", time.Now().UTC().Format(time.RFC3339Nano),
		"channel_count", strconv.Itoa(channelCount),
	).Result()
	if err != nil {
		return fmt.Errorf("twitchmon/redis: heartbeat instance: %w", err)
	}
	return nil
}

// ListInstances returns all registered instances.
func (s *Store) ListInstances(ctx context.Context) ([]*instance.Instance, error) {
	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("twitchmon/redis: list instances: %w", err)
	}

	instances := make([]*instance.Instance, 0, len(ids))
	for _, instID := range ids {
		vals, getErr := s.client.HGetAll(ctx, instanceKey(instID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		inst, convErr := mapToInstance(vals)
		if convErr != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// DeleteExpiredInstances removes every instance whose last heartbeat is
// older than olderThan.
func (s *Store) DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/redis: expired smembers: %w", err)
	}

	var removed int64
	for _, instID := range ids {
		vals, getErr := s.client.HGetAll(ctx, instanceKey(instID)).Result()
		if getErr != nil {
			continue
		}
		if len(vals) == 0 {
			// Orphaned index entry.
			s.client.SRem(ctx, instanceIDsKey, instID)
			continue
		}
		inst, convErr := mapToInstance(vals)
		if convErr != nil {
			continue
		}
		if inst.LastHeartbeat.Before(cutoff) {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, instanceKey(instID))
			pipe.SRem(ctx, instanceIDsKey, instID)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				s.logger.Warn("failed to remove expired instance", "instance_id", instID, "error", pErr)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// ── helpers ──

func instanceToMap(inst *instance.Instance) map[string]interface{} {
	return map[string]interface{}{
		"id":             inst.ID.String(),
		"hostname":       inst.Hostname,
		"channel_count":  strconv.Itoa(inst.ChannelCount),
		"registered_at":  inst.RegisteredAt.Format(time.RFC3339Nano),
		"last_heartbeat": inst.LastHeartbeat.Format(time.RFC3339Nano),
	}
}

func mapToInstance(m map[string]string) (*instance.Instance, error) {
	instID, err := id.ParseInstanceID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("twitchmon/redis: parse instance id: %w", err)
	}

	channelCount, _ := strconv.Atoi(m["channel_count"])                   //nolint:errcheck // best-effort parse from trusted Redis data
	registeredAt, _ := time.Parse(time.RFC3339Nano, m["registered_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	lastHeartbeat, _ := time.Parse(time.RFC3339Nano, m["last_heartbeat"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &instance.Instance{
		ID:            instID,
		Hostname:      m["hostname"],
		ChannelCount:  channelCount,
		RegisteredAt:  registeredAt,
		LastHeartbeat: lastHeartbeat,
	}, nil
}

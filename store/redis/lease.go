package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// InsertLease atomically claims a channel with SET NX. The key's TTL is
// the stale threshold, so a dead owner's claim vanishes on its own.
func (s *Store) InsertLease(ctx context.Context, l *lease.Lease, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, leaseKey(l.ChannelID), l.InstanceID.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("twitchmon/redis: insert lease setnx: %w", err)
	}
	if !ok {
		return twitchmon.ErrLeaseHeld
	}

	s.writeLeaseMeta(ctx, l)
	return nil
}

// TakeoverLease re-claims a channel whose ownership key has expired, or
// refreshes it when the caller is already the owner. SET NX is the
// atomic step; two racers for the same expired key cannot both succeed.
func (s *Store) TakeoverLease(ctx context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error) {
	instID := instanceID.String()
	key := leaseKey(channelID)

	ok, err := s.client.SetNX(ctx, key, instID, staleAfter).Result()
	if err != nil {
		return false, fmt.Errorf("twitchmon/redis: takeover setnx: %w", err)
	}
	now := time.Now().UTC()
	if ok {
		s.writeLeaseMeta(ctx, lease.New(channelID, instanceID, now))
		return true, nil
	}

	// Key still live. Only the current owner may refresh it.
	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil // expired between SETNX and GET; caller retries
		}
		return false, fmt.Errorf("twitchmon/redis: takeover get: %w", err)
	}
	if current != instID {
		return false, nil
	}

	if eErr := s.client.PExpire(ctx, key, staleAfter).Err(); eErr != nil {
		s.logger.Warn("failed to extend lease ttl", "channel_id", channelID, "error", eErr)
	}
	s.writeLeaseMeta(ctx, lease.New(channelID, instanceID, now))
	return true, nil
}

// releaseScript deletes a lease only while the caller still owns it.
// The compare and the delete run as one script, so a peer's claim made
// after our key expired is never destroyed by a late release.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	redis.call("SREM", KEYS[3], ARGV[2])
	return 1
end
return 0`)

// ReleaseLease deletes the lease when instanceID is the current owner.
func (s *Store) ReleaseLease(ctx context.Context, channelID string, instanceID id.InstanceID) error {
	n, err := releaseScript.Run(ctx, s.client,
		[]string{leaseKey(channelID), leaseMetaKey(channelID), leaseChannelsKey},
		instanceID.String(), channelID,
	).Int()
	if err != nil {
		return fmt.Errorf("twitchmon/redis: release lease: %w", err)
	}
	if n == 0 {
		return twitchmon.ErrLeaseNotHeld
	}
	return nil
}

// ReleaseInstanceLeases deletes every lease owned by instanceID.
func (s *Store) ReleaseInstanceLeases(ctx context.Context, instanceID id.InstanceID) (int64, error) {
	instID := instanceID.String()

	channels, err := s.client.SMembers(ctx, leaseChannelsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/redis: release instance smembers: %w", err)
	}

	var removed int64
	for _, channelID := range channels {
		n, runErr := releaseScript.Run(ctx, s.client,
			[]string{leaseKey(channelID), leaseMetaKey(channelID), leaseChannelsKey},
			instID, channelID,
		).Int()
		if runErr != nil {
			s.logger.Warn("failed to release lease", "channel_id", channelID, "error", runErr)
			continue
		}
		removed += int64(n)
	}
	return removed, nil
}

// RefreshLeases extends the TTL on every lease still owned by
// instanceID among channelIDs and bumps the metadata heartbeat.
func (s *Store) RefreshLeases(ctx context.Context, instanceID id.InstanceID, channelIDs []string, ttl time.Duration) (int64, error) {
	instID := instanceID.String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var refreshed int64
	for _, channelID := range channelIDs {
		current, err := s.client.Get(ctx, leaseKey(channelID)).Result()
		if err != nil || current != instID {
			continue
		}
		if eErr := s.client.PExpire(ctx, leaseKey(channelID), ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend lease ttl", "channel_id", channelID, "error", eErr)
			continue
		}
		s.client.HSet(ctx, leaseMetaKey(channelID), "last_heartbeat", now)
		refreshed++
	}
	return refreshed, nil
}

// ListLeases returns all live leases.
func (s *Store) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	channels, err := s.client.SMembers(ctx, leaseChannelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("twitchmon/redis: list leases: %w", err)
	}

	leases := make([]*lease.Lease, 0, len(channels))
	for _, channelID := range channels {
		exists, exErr := s.client.Exists(ctx, leaseKey(channelID)).Result()
		if exErr != nil || exists == 0 {
			continue
		}
		vals, getErr := s.client.HGetAll(ctx, leaseMetaKey(channelID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		l, convErr := mapToLease(vals)
		if convErr != nil {
			continue
		}
		leases = append(leases, l)
	}
	return leases, nil
}

// DeleteExpiredLeases reconciles the enumeration index with Redis expiry:
// any channel whose ownership key has expired gets its metadata and index
// entry removed. The olderThan threshold is enforced by the TTL itself.
func (s *Store) DeleteExpiredLeases(ctx context.Context, _ time.Duration) (int64, error) {
	channels, err := s.client.SMembers(ctx, leaseChannelsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/redis: expired smembers: %w", err)
	}

	var removed int64
	for _, channelID := range channels {
		exists, exErr := s.client.Exists(ctx, leaseKey(channelID)).Result()
		if exErr != nil || exists > 0 {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, leaseMetaKey(channelID))
		pipe.SRem(ctx, leaseChannelsKey, channelID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			s.logger.Warn("failed to reconcile expired lease", "channel_id", channelID, "error", pErr)
			continue
		}
		removed++
	}
	return removed, nil
}

// ── helpers ──

// writeLeaseMeta records the enumeration metadata for a claimed lease.
// Best effort: the ownership key is the source of truth and the sweep
// reconciles any divergence.
func (s *Store) writeLeaseMeta(ctx context.Context, l *lease.Lease) {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, leaseMetaKey(l.ChannelID), leaseToMap(l))
	pipe.SAdd(ctx, leaseChannelsKey, l.ChannelID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to write lease metadata", "channel_id", l.ChannelID, "error", err)
	}
}

func leaseToMap(l *lease.Lease) map[string]interface{} {
	return map[string]interface{}{
		"channel_id":     l.ChannelID,
		"instance_id":    l.InstanceID.String(),
		"acquired_at":    l.AcquiredAt.Format(time.RFC3339Nano),
		"last_heartbeat": l.LastHeartbeat.Format(time.RFC3339Nano),
	}
}

func mapToLease(m map[string]string) (*lease.Lease, error) {
	instID, err := id.ParseInstanceID(m["instance_id"])
	if err != nil {
		return nil, fmt.Errorf("twitchmon/redis: parse instance id: %w", err)
	}

	acquiredAt, _ := time.Parse(time.RFC3339Nano, m["acquired_at"])       //nolint:errcheck // best-effort parse from trusted Redis data
	lastHeartbeat, _ := time.Parse(time.RFC3339Nano, m["last_heartbeat"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &lease.Lease{
		ChannelID:     m["channel_id"],
		InstanceID:    instID,
		AcquiredAt:    acquiredAt,
		LastHeartbeat: lastHeartbeat,
	}, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// InsertLease atomically claims a channel. The primary key on channel_id
// makes the insert fail when another instance already holds the lease.
// The ttl parameter is only meaningful for expiry-based backends.
func (s *Store) InsertLease(ctx context.Context, l *lease.Lease, _ time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO twitchmon_leases (channel_id, instance_id, acquired_at, last_heartbeat)
		VALUES ($1, $2, $3, $4)`,
		l.ChannelID, l.InstanceID.String(), l.AcquiredAt, l.LastHeartbeat,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return twitchmon.ErrLeaseHeld
		}
		return fmt.Errorf("twitchmon/postgres: insert lease: %w", err)
	}
	return nil
}

// TakeoverLease reassigns the lease in one conditional UPDATE: only when
// the caller already owns it or the current holder's heartbeat has gone
// stale. Two racers cannot both match; the first write resets the
// heartbeat and the second's predicate finds a fresh row.
func (s *Store) TakeoverLease(ctx context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE twitchmon_leases
		SET instance_id = $2, acquired_at = NOW(), last_heartbeat = NOW()
		WHERE channel_id = $1
		  AND (instance_id = $2 OR last_heartbeat < NOW() - $3::interval)`,
		channelID, instanceID.String(), staleAfter.String(),
	)
	if err != nil {
		return false, fmt.Errorf("twitchmon/postgres: takeover lease: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease deletes the lease scoped to (channelID, instanceID).
func (s *Store) ReleaseLease(ctx context.Context, channelID string, instanceID id.InstanceID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM twitchmon_leases WHERE channel_id = $1 AND instance_id = $2`,
		channelID, instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/postgres: release lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return twitchmon.ErrLeaseNotHeld
	}
	return nil
}

// ReleaseInstanceLeases deletes every lease owned by instanceID.
func (s *Store) ReleaseInstanceLeases(ctx context.Context, instanceID id.InstanceID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM twitchmon_leases WHERE instance_id = $1`,
		instanceID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/postgres: release instance leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RefreshLeases bumps last-heartbeat on every lease still owned by
// instanceID among channelIDs. Leases lost to takeover simply match
// nothing.
func (s *Store) RefreshLeases(ctx context.Context, instanceID id.InstanceID, channelIDs []string, _ time.Duration) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE twitchmon_leases
		SET last_heartbeat = NOW()
		WHERE instance_id = $1 AND channel_id = ANY($2)`,
		instanceID.String(), channelIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/postgres: refresh leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListLeases returns all current leases.
func (s *Store) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel_id, instance_id, acquired_at, last_heartbeat
		FROM twitchmon_leases
		ORDER BY acquired_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/postgres: list leases: %w", err)
	}
	defer rows.Close()

	var leases []*lease.Lease
	for rows.Next() {
		l, scanErr := scanLease(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("twitchmon/postgres: scan lease row: %w", scanErr)
		}
		leases = append(leases, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("twitchmon/postgres: iterate lease rows: %w", err)
	}
	return leases, nil
}

// DeleteExpiredLeases removes every lease whose last heartbeat is older
// than olderThan.
func (s *Store) DeleteExpiredLeases(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM twitchmon_leases WHERE last_heartbeat < NOW() - $1::interval`,
		olderThan.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/postgres: delete expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanLease scans a single lease row.
func scanLease(row pgx.Row) (*lease.Lease, error) {
	var (
		l     lease.Lease
		idStr string
	)
	err := row.Scan(&l.ChannelID, &idStr, &l.AcquiredAt, &l.LastHeartbeat)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseInstanceID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("twitchmon/postgres: parse instance id %q: %w", idStr, parseErr)
	}
	l.InstanceID = parsedID

	return &l, nil
}

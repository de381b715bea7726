package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// InsertLease atomically claims a channel. The primary key on channel_id
// makes the insert fail when another instance already holds the lease.
// The ttl parameter is only meaningful for expiry-based backends.
func (s *Store) InsertLease(ctx context.Context, l *lease.Lease, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO twitchmon_leases (channel_id, instance_id, acquired_at, last_heartbeat)
		VALUES (?, ?, ?, ?)`,
		l.ChannelID, l.InstanceID.String(), l.AcquiredAt.UTC(), l.LastHeartbeat.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return twitchmon.ErrLeaseHeld
		}
		return fmt.Errorf("twitchmon/sqlite: insert lease: %w", err)
	}
	return nil
}

// TakeoverLease reassigns the lease in one conditional UPDATE: only when
// the caller already owns it or the current holder's heartbeat has gone
// stale.
func (s *Store) TakeoverLease(ctx context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-staleAfter)
	res, err := s.db.ExecContext(ctx, `
		UPDATE twitchmon_leases
		SET instance_id = ?, acquired_at = ?, last_heartbeat = ?
		WHERE channel_id = ?
		  AND (instance_id = ? OR last_heartbeat < ?)`,
		instanceID.String(), now, now,
		channelID, instanceID.String(), cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("twitchmon/sqlite: takeover lease: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("twitchmon/sqlite: takeover lease rows: %w", err)
	}
	return rows > 0, nil
}

// ReleaseLease deletes the lease scoped to (channelID, instanceID).
func (s *Store) ReleaseLease(ctx context.Context, channelID string, instanceID id.InstanceID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM twitchmon_leases WHERE channel_id = ? AND instance_id = ?`,
		channelID, instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: release lease: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("twitchmon/sqlite: release lease rows: %w", err)
	}
	if rows == 0 {
		return twitchmon.ErrLeaseNotHeld
	}
	return nil
}

// ReleaseInstanceLeases deletes every lease owned by instanceID.
func (s *Store) ReleaseInstanceLeases(ctx context.Context, instanceID id.InstanceID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM twitchmon_leases WHERE instance_id = ?`,
		instanceID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: release instance leases: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: release instance leases rows: %w", err)
	}
	return rows, nil
}

// RefreshLeases bumps last-heartbeat on every lease still owned by
// instanceID among channelIDs.
func (s *Store) RefreshLeases(ctx context.Context, instanceID id.InstanceID, channelIDs []string, _ time.Duration) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(channelIDs)), ", ")
	args := make([]any, 0, len(channelIDs)+2)
	args = append(args, time.Now().UTC(), instanceID.String())
	for _, ch := range channelIDs {
		args = append(args, ch)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE twitchmon_leases
		SET last_heartbeat = ?
		WHERE instance_id = ? AND channel_id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: refresh leases: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: refresh leases rows: %w", err)
	}
	return rows, nil
}

// ListLeases returns all current leases.
func (s *Store) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, instance_id, acquired_at, last_heartbeat
		FROM twitchmon_leases
		ORDER BY acquired_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/sqlite: list leases: %w", err)
	}
	defer rows.Close()

	var leases []*lease.Lease
	for rows.Next() {
		var (
			l     lease.Lease
			idStr string
		)
		if err = rows.Scan(&l.ChannelID, &idStr, &l.AcquiredAt, &l.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("twitchmon/sqlite: scan lease row: %w", err)
		}
		parsedID, parseErr := id.ParseInstanceID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("twitchmon/sqlite: parse instance id %q: %w", idStr, parseErr)
		}
		l.InstanceID = parsedID
		leases = append(leases, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("twitchmon/sqlite: iterate lease rows: %w", err)
	}
	return leases, nil
}

// DeleteExpiredLeases removes every lease whose last heartbeat is older
// than olderThan.
func (s *Store) DeleteExpiredLeases(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM twitchmon_leases WHERE last_heartbeat < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: delete expired leases: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("twitchmon/sqlite: delete expired leases rows: %w", err)
	}
	return rows, nil
}

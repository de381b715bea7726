package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// InsertLease atomically claims a channel. The primary key on channel_id
// makes the insert fail when another instance already holds the lease.
// The ttl parameter is only meaningful for expiry-based backends.
func (s *Store) InsertLease(ctx context.Context, l *lease.Lease, _ time.Duration) error {
	m := toLeaseModel(l)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return twitchmon.ErrLeaseHeld
		}
		return fmt.Errorf("twitchmon/bun: insert lease: %w", err)
	}
	return nil
}

// TakeoverLease reassigns the lease in one conditional UPDATE: only when
// the caller already owns it or the current holder's heartbeat has gone
// stale.
func (s *Store) TakeoverLease(ctx context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*leaseModel)(nil)).
		Set("instance_id = ?", instanceID.String()).
		Set("acquired_at = NOW()").
		Set("last_heartbeat = NOW()").
		Where("channel_id = ?", channelID).
		Where("(instance_id = ? OR last_heartbeat < NOW() - ?::interval)",
			instanceID.String(), staleAfter.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("twitchmon/bun: takeover lease: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows > 0, nil
}

// ReleaseLease deletes the lease scoped to (channelID, instanceID).
func (s *Store) ReleaseLease(ctx context.Context, channelID string, instanceID id.InstanceID) error {
	res, err := s.db.NewDelete().
		TableExpr("twitchmon_leases").
		Where("channel_id = ?", channelID).
		Where("instance_id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("twitchmon/bun: release lease: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return twitchmon.ErrLeaseNotHeld
	}
	return nil
}

// ReleaseInstanceLeases deletes every lease owned by instanceID.
func (s *Store) ReleaseInstanceLeases(ctx context.Context, instanceID id.InstanceID) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("twitchmon_leases").
		Where("instance_id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/bun: release instance leases: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// RefreshLeases bumps last-heartbeat on every lease still owned by
// instanceID among channelIDs.
func (s *Store) RefreshLeases(ctx context.Context, instanceID id.InstanceID, channelIDs []string, _ time.Duration) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.NewUpdate().
		Model((*leaseModel)(nil)).
		Set("last_heartbeat = NOW()").
		Where("instance_id = ?", instanceID.String()).
		Where("channel_id = ANY(?)", pgdialect.Array(channelIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/bun: refresh leases: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// ListLeases returns all current leases.
func (s *Store) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	var models []leaseModel
	err := s.db.NewSelect().Model(&models).
		Order("acquired_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("twitchmon/bun: list leases: %w", err)
	}

	leases := make([]*lease.Lease, 0, len(models))
	for i := range models {
		l, convErr := fromLeaseModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("twitchmon/bun: list convert: %w", convErr)
		}
		leases = append(leases, l)
	}
	return leases, nil
}

// DeleteExpiredLeases removes every lease whose last heartbeat is older
// than olderThan.
func (s *Store) DeleteExpiredLeases(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("twitchmon_leases").
		Where("last_heartbeat < NOW() - ?::interval", olderThan.String()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("twitchmon/bun: delete expired leases: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

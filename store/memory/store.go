// Package memory provides a fully in-memory Store implementation.
// Safe for concurrent access. Intended for unit testing and development;
// it coordinates nothing across processes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
)

// Ensure Store implements both subsystem interfaces at compile time.
var (
	_ instance.Store = (*Store)(nil)
	_ lease.Store    = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	instances map[string]*instance.Instance
	leases    map[string]*lease.Lease
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		instances: make(map[string]*instance.Instance),
		leases:    make(map[string]*lease.Lease),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Instance registry
// ──────────────────────────────────────────────────

// PutInstance inserts or replaces the registry row for inst.
func (m *Store) PutInstance(_ context.Context, inst *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inst
	m.instances[inst.ID.String()] = &cp
	return nil
}

// DeleteInstance removes the registry row for instanceID.
func (m *Store) DeleteInstance(_ context.Context, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceID.String()
	if _, ok := m.instances[key]; !ok {
		return twitchmon.ErrInstanceNotFound
	}
	delete(m.instances, key)
	return nil
}

// HeartbeatInstance refreshes last-heartbeat and the channel count.
func (m *Store) HeartbeatInstance(_ context.Context, instanceID id.InstanceID, channelCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID.String()]
	if !ok {
		return twitchmon.ErrInstanceNotFound
	}
	inst.LastHeartbeat = time.Now().UTC()
	inst.ChannelCount = channelCount
	return nil
}

// ListInstances returns all registered instances ordered by registration time.
func (m *Store) ListInstances(_ context.Context) ([]*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*instance.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		cp := *inst
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].RegisteredAt.Before(result[k].RegisteredAt)
	})
	return result, nil
}

// DeleteExpiredInstances removes instances with a heartbeat older than olderThan.
func (m *Store) DeleteExpiredInstances(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var removed int64
	for key, inst := range m.instances {
		if inst.LastHeartbeat.Before(cutoff) {
			delete(m.instances, key)
			removed++
		}
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// Lease table
// ──────────────────────────────────────────────────

// InsertLease atomically creates l; a duplicate channel id fails.
func (m *Store) InsertLease(_ context.Context, l *lease.Lease, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.leases[l.ChannelID]; exists {
		return twitchmon.ErrLeaseHeld
	}
	cp := *l
	m.leases[l.ChannelID] = &cp
	return nil
}

// TakeoverLease reassigns the lease when the owner is instanceID itself
// or the lease's heartbeat is older than staleAfter.
func (m *Store) TakeoverLease(_ context.Context, channelID string, instanceID id.InstanceID, staleAfter time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[channelID]
	if !ok {
		return false, nil
	}

	now := time.Now().UTC()
	stale := l.LastHeartbeat.Before(now.Add(-staleAfter))
	if l.InstanceID.String() != instanceID.String() && !stale {
		return false, nil
	}

	l.InstanceID = instanceID
	l.AcquiredAt = now
	l.LastHeartbeat = now
	return true, nil
}

// ReleaseLease deletes the lease scoped to (channelID, instanceID).
func (m *Store) ReleaseLease(_ context.Context, channelID string, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[channelID]
	if !ok || l.InstanceID.String() != instanceID.String() {
		return twitchmon.ErrLeaseNotHeld
	}
	delete(m.leases, channelID)
	return nil
}

// ReleaseInstanceLeases deletes every lease owned by instanceID.
func (m *Store) ReleaseInstanceLeases(_ context.Context, instanceID id.InstanceID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	owner := instanceID.String()
	for ch, l := range m.leases {
		if l.InstanceID.String() == owner {
			delete(m.leases, ch)
			removed++
		}
	}
	return removed, nil
}

// RefreshLeases updates last-heartbeat on every lease still owned by
// instanceID among channelIDs.
func (m *Store) RefreshLeases(_ context.Context, instanceID id.InstanceID, channelIDs []string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	owner := instanceID.String()
	var refreshed int64
	for _, ch := range channelIDs {
		l, ok := m.leases[ch]
		if !ok || l.InstanceID.String() != owner {
			continue
		}
		l.LastHeartbeat = now
		refreshed++
	}
	return refreshed, nil
}

// ListLeases returns all current leases ordered by channel id.
func (m *Store) ListLeases(_ context.Context) ([]*lease.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*lease.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		cp := *l
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ChannelID < result[k].ChannelID
	})
	return result, nil
}

// DeleteExpiredLeases removes leases with a heartbeat older than olderThan.
func (m *Store) DeleteExpiredLeases(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var removed int64
	for ch, l := range m.leases {
		if l.LastHeartbeat.Before(cutoff) {
			delete(m.leases, ch)
			removed++
		}
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// Test helpers
// ──────────────────────────────────────────────────

// SetLeaseHeartbeat rewinds or advances a lease's heartbeat. Test helper
// for aging leases past the stale threshold without sleeping.
func (m *Store) SetLeaseHeartbeat(channelID string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[channelID]; ok {
		l.LastHeartbeat = ts
	}
}

// SetInstanceHeartbeat rewinds or advances an instance's heartbeat.
func (m *Store) SetInstanceHeartbeat(instanceID id.InstanceID, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[instanceID.String()]; ok {
		inst.LastHeartbeat = ts
	}
}

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/store/postgres"
)

// setupTestStore creates a Postgres container and returns a connected Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("twitchmon_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

func registerInstance(t *testing.T, s *postgres.Store, hostname string) *instance.Instance {
	t.Helper()
	now := time.Now().UTC()
	inst := &instance.Instance{
		ID:            id.NewInstanceID(),
		Hostname:      hostname,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	if err := s.PutInstance(context.Background(), inst); err != nil {
		t.Fatalf("put instance: %v", err)
	}
	return inst
}

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestInstanceStore_PutAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	inst := registerInstance(t, s, "listener-1")

	// Upsert with a new channel count replaces the row.
	inst.ChannelCount = 7
	if err := s.PutInstance(ctx, inst); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	instances, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(instances))
	}
	if instances[0].Hostname != "listener-1" {
		t.Fatalf("expected listener-1, got %s", instances[0].Hostname)
	}
	if instances[0].ChannelCount != 7 {
		t.Fatalf("expected channel count 7, got %d", instances[0].ChannelCount)
	}
}

func TestInstanceStore_HeartbeatAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	inst := registerInstance(t, s, "listener-1")

	if err := s.HeartbeatInstance(ctx, inst.ID, 3); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	instances, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if instances[0].ChannelCount != 3 {
		t.Fatalf("expected channel count 3, got %d", instances[0].ChannelCount)
	}

	if err = s.DeleteInstance(ctx, inst.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Missing rows surface as not-found.
	if err = s.DeleteInstance(ctx, inst.ID); !errors.Is(err, twitchmon.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got: %v", err)
	}
	if err = s.HeartbeatInstance(ctx, inst.ID, 0); !errors.Is(err, twitchmon.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got: %v", err)
	}
}

func TestInstanceStore_DeleteExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	stale := registerInstance(t, s, "stale")
	stale.LastHeartbeat = time.Now().UTC().Add(-5 * time.Minute)
	if err := s.PutInstance(ctx, stale); err != nil {
		t.Fatalf("backdate stale: %v", err)
	}
	registerInstance(t, s, "fresh")

	removed, err := s.DeleteExpiredInstances(ctx, time.Minute)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	instances, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(instances) != 1 || instances[0].Hostname != "fresh" {
		t.Fatalf("expected only fresh instance to survive, got %+v", instances)
	}
}

func TestLeaseStore_InsertRejectsDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")
	b := registerInstance(t, s, "b")

	now := time.Now().UTC()
	if err := s.InsertLease(ctx, lease.New("streamer_1", a.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := s.InsertLease(ctx, lease.New("streamer_1", b.ID, now), 30*time.Second)
	if !errors.Is(err, twitchmon.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got: %v", err)
	}
}

func TestLeaseStore_Takeover(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")
	b := registerInstance(t, s, "b")

	now := time.Now().UTC()
	if err := s.InsertLease(ctx, lease.New("streamer_1", a.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Fresh lease held by a peer cannot be taken.
	taken, err := s.TakeoverLease(ctx, "streamer_1", b.ID, time.Minute)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if taken {
		t.Fatal("expected takeover of fresh lease to fail")
	}

	// The owner can always re-take its own lease.
	taken, err = s.TakeoverLease(ctx, "streamer_1", a.ID, time.Minute)
	if err != nil {
		t.Fatalf("self takeover: %v", err)
	}
	if !taken {
		t.Fatal("expected owner to re-take its own lease")
	}

	// Wait until the lease heartbeat ages past a short threshold, then a
	// peer wins the takeover.
	time.Sleep(100 * time.Millisecond)
	taken, err = s.TakeoverLease(ctx, "streamer_1", b.ID, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("stale takeover: %v", err)
	}
	if !taken {
		t.Fatal("expected takeover of stale lease to succeed")
	}

	leases, err := s.ListLeases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leases) != 1 {
		t.Fatalf("expected 1 lease, got %d", len(leases))
	}
	if leases[0].InstanceID.String() != b.ID.String() {
		t.Fatalf("expected lease owned by b, got %s", leases[0].InstanceID)
	}
}

func TestLeaseStore_TakeoverMissingChannel(t *testing.T) {
	s := setupTestStore(t)

	a := registerInstance(t, s, "a")

	taken, err := s.TakeoverLease(context.Background(), "nonexistent", a.ID, time.Minute)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if taken {
		t.Fatal("expected takeover of missing lease to match nothing")
	}
}

func TestLeaseStore_ReleaseScoping(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")
	b := registerInstance(t, s, "b")

	now := time.Now().UTC()
	if err := s.InsertLease(ctx, lease.New("streamer_1", a.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A non-owner's release matches nothing.
	if err := s.ReleaseLease(ctx, "streamer_1", b.ID); !errors.Is(err, twitchmon.ErrLeaseNotHeld) {
		t.Fatalf("expected ErrLeaseNotHeld, got: %v", err)
	}

	if err := s.ReleaseLease(ctx, "streamer_1", a.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	leases, err := s.ListLeases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leases) != 0 {
		t.Fatalf("expected 0 leases, got %d", len(leases))
	}
}

func TestLeaseStore_ReleaseInstanceLeases(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")
	b := registerInstance(t, s, "b")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ch := fmt.Sprintf("a_streamer_%d", i)
		if err := s.InsertLease(ctx, lease.New(ch, a.ID, now), 30*time.Second); err != nil {
			t.Fatalf("insert %s: %v", ch, err)
		}
	}
	if err := s.InsertLease(ctx, lease.New("b_streamer", b.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert b lease: %v", err)
	}

	removed, err := s.ReleaseInstanceLeases(ctx, a.ID)
	if err != nil {
		t.Fatalf("release instance leases: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	leases, err := s.ListLeases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leases) != 1 || leases[0].ChannelID != "b_streamer" {
		t.Fatalf("expected only b's lease to survive, got %+v", leases)
	}
}

func TestLeaseStore_RefreshScoping(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")
	b := registerInstance(t, s, "b")

	now := time.Now().UTC()
	if err := s.InsertLease(ctx, lease.New("mine", a.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert mine: %v", err)
	}
	if err := s.InsertLease(ctx, lease.New("theirs", b.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert theirs: %v", err)
	}

	// Refresh targets a channel this instance lost; only the owned row
	// matches.
	refreshed, err := s.RefreshLeases(ctx, a.ID, []string{"mine", "theirs"}, 30*time.Second)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed != 1 {
		t.Fatalf("expected 1 refreshed, got %d", refreshed)
	}

	// Empty channel set is a no-op.
	refreshed, err = s.RefreshLeases(ctx, a.ID, nil, 30*time.Second)
	if err != nil {
		t.Fatalf("empty refresh: %v", err)
	}
	if refreshed != 0 {
		t.Fatalf("expected 0 refreshed, got %d", refreshed)
	}
}

func TestLeaseStore_DeleteExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := registerInstance(t, s, "a")

	now := time.Now().UTC()
	if err := s.InsertLease(ctx, lease.New("stale", a.ID, now.Add(-5*time.Minute)), 30*time.Second); err != nil {
		t.Fatalf("insert stale: %v", err)
	}
	if err := s.InsertLease(ctx, lease.New("fresh", a.ID, now), 30*time.Second); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	removed, err := s.DeleteExpiredLeases(ctx, time.Minute)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	leases, err := s.ListLeases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leases) != 1 || leases[0].ChannelID != "fresh" {
		t.Fatalf("expected only fresh lease to survive, got %+v", leases)
	}
}

func TestLeaseStore_ConcurrentTakeoverSingleWinner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := registerInstance(t, s, "owner")

	// Backdated heartbeat makes the lease immediately stale.
	l := lease.New("contested", owner.ID, time.Now().UTC().Add(-5*time.Minute))
	if err := s.InsertLease(ctx, l, 30*time.Second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const racers = 8
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		inst := registerInstance(t, s, fmt.Sprintf("racer-%d", i))
		go func() {
			taken, err := s.TakeoverLease(ctx, "contested", inst.ID, time.Minute)
			if err != nil {
				t.Errorf("takeover: %v", err)
			}
			wins <- taken
		}()
	}

	var winners int
	for i := 0; i < racers; i++ {
		if <-wins {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

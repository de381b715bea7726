package janitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/janitor"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/lease"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/store/memory"
)

// sweepSpy counts sweep calls with thread safety.
type sweepSpy struct {
	mu    sync.Mutex
	calls int
}

func (s *sweepSpy) DeleteExpiredLeases(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, nil
}

func (s *sweepSpy) DeleteExpiredInstances(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (s *sweepSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingSweeper errors on every call.
type failingSweeper struct{}

func (failingSweeper) DeleteExpiredLeases(_ context.Context, _ time.Duration) (int64, error) {
	return 0, errors.New("sweep boom")
}

func (failingSweeper) DeleteExpiredInstances(_ context.Context, _ time.Duration) (int64, error) {
	return 0, errors.New("sweep boom")
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := janitor.New(&sweepSpy{}, "not a schedule"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
	for _, expr := range []string{"@every 2m", "*/5 * * * *"} {
		if _, err := janitor.New(&sweepSpy{}, expr); err != nil {
			t.Errorf("New(%q): %v", expr, err)
		}
	}
}

func TestSweepRemovesOnlyStale(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	dead, live := id.NewInstanceID(), id.NewInstanceID()
	for _, inst := range []*instance.Instance{
		{ID: dead, Hostname: "dead", RegisteredAt: now, LastHeartbeat: now.Add(-time.Minute)},
		{ID: live, Hostname: "live", RegisteredAt: now, LastHeartbeat: now},
	} {
		if err := st.PutInstance(ctx, inst); err != nil {
			t.Fatalf("PutInstance: %v", err)
		}
	}
	if err := st.InsertLease(ctx, lease.New("stale-chan", dead, now), time.Minute); err != nil {
		t.Fatalf("InsertLease: %v", err)
	}
	st.SetLeaseHeartbeat("stale-chan", now.Add(-time.Minute))
	if err := st.InsertLease(ctx, lease.New("fresh-chan", live, now), time.Minute); err != nil {
		t.Fatalf("InsertLease: %v", err)
	}

	j, err := janitor.New(st, "@every 1h", janitor.WithThreshold(30*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	leases, instances := j.Sweep(ctx)
	if leases != 1 || instances != 1 {
		t.Errorf("expected the stale pair removed, got leases=%d instances=%d", leases, instances)
	}

	locks, _ := st.ListLeases(ctx)
	if len(locks) != 1 || locks[0].ChannelID != "fresh-chan" {
		t.Errorf("the fresh lease must survive, got %+v", locks)
	}
}

func TestSweepAbsorbsErrors(t *testing.T) {
	j, err := janitor.New(failingSweeper{}, "@every 1h")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	leases, instances := j.Sweep(context.Background())
	if leases != 0 || instances != 0 {
		t.Errorf("a failed sweep should report zero removals, got %d and %d", leases, instances)
	}
}

func TestScheduledFiring(t *testing.T) {
	spy := &sweepSpy{}
	// @every rounds sub-second delays up to one second.
	j, err := janitor.New(spy, "@every 1s")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for spy.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 2 scheduled sweeps, got %d", spy.count())
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := j.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopIdempotentAndRestartable(t *testing.T) {
	spy := &sweepSpy{}
	j, err := janitor.New(spy, "@every 1s")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// Stop before Start touches nothing.
	if err := j.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, name := range []string{"first Stop", "second Stop"} {
		if err := j.Stop(ctx); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	// A stopped janitor starts again and keeps firing.
	if err := j.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	before := spy.count()
	deadline := time.Now().Add(5 * time.Second)
	for spy.count() <= before {
		if time.Now().After(deadline) {
			t.Fatalf("restarted janitor never swept, count stuck at %d", spy.count())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := j.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

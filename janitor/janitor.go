// Package janitor runs the expired-row sweep on a cron schedule from a
// process outside the listener fleet. Deployments that prefer
// reclamation to happen from one ops process (rather than the coarse
// per-heartbeat cadence inside every coordinator) run a Janitor; the
// sweep itself is idempotent, so both may run at once.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Sweeper is the slice of the store the janitor needs.
type Sweeper interface {
	DeleteExpiredLeases(ctx context.Context, olderThan time.Duration) (int64, error)
	DeleteExpiredInstances(ctx context.Context, olderThan time.Duration) (int64, error)
}

// cronParser supports standard 5-field cron and descriptors like "@every 2m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithThreshold sets the heartbeat age past which rows are reclaimed.
func WithThreshold(d time.Duration) Option {
	return func(j *Janitor) { j.threshold = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) { j.logger = l }
}

// Janitor sweeps expired leases and instances whenever its schedule
// fires. Sweep failures are logged and swallowed; the next firing
// retries.
type Janitor struct {
	store     Sweeper
	schedule  cronlib.Schedule
	threshold time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Janitor firing per the cron expression expr
// (e.g. "*/5 * * * *" or "@every 2m").
func New(store Sweeper, expr string, opts ...Option) (*Janitor, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	j := &Janitor{
		store:     store,
		schedule:  schedule,
		threshold: 30 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start launches the sweep goroutine. Idempotent; Start on a running
// janitor is a no-op.
func (j *Janitor) Start(_ context.Context) error {
	j.mu.Lock()
	if j.stopCh != nil {
		j.mu.Unlock()
		return nil
	}
	stopCh := make(chan struct{})
	j.stopCh = stopCh
	j.mu.Unlock()

	j.wg.Add(1)
	go j.loop(stopCh)
	j.logger.Info("janitor started", slog.Duration("threshold", j.threshold))
	return nil
}

// Stop signals the janitor to stop and waits for the goroutine to
// finish. Idempotent; the janitor can be started again afterwards.
func (j *Janitor) Stop(_ context.Context) error {
	j.mu.Lock()
	stopCh := j.stopCh
	j.stopCh = nil
	j.mu.Unlock()
	if stopCh == nil {
		return nil
	}

	close(stopCh)
	j.wg.Wait()
	j.logger.Info("janitor stopped")
	return nil
}

// loop sleeps until the next scheduled firing and sweeps.
func (j *Janitor) loop(stopCh <-chan struct{}) {
	defer j.wg.Done()

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			j.Sweep(context.Background())
		}
	}
}

// Sweep removes every lease and instance whose heartbeat is older than
// the threshold and logs the counts. Errors are absorbed.
func (j *Janitor) Sweep(ctx context.Context) (leasesRemoved, instancesRemoved int64) {
	var err error
	leasesRemoved, err = j.store.DeleteExpiredLeases(ctx, j.threshold)
	if err != nil {
		j.logger.Warn("expired lease sweep failed", slog.String("error", err.Error()))
	}
	instancesRemoved, err = j.store.DeleteExpiredInstances(ctx, j.threshold)
	if err != nil {
		j.logger.Warn("expired instance sweep failed", slog.String("error", err.Error()))
	}

	if leasesRemoved > 0 || instancesRemoved > 0 {
		j.logger.Info("swept expired rows",
			slog.Int64("leases", leasesRemoved),
			slog.Int64("instances", instancesRemoved),
		)
	}
	return leasesRemoved, instancesRemoved
}

package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/robfig/cron/v3"
)

// Janitor prunes finished jobs older than the retention window.
// It wakes on a fixed tick and runs whenever the cron schedule says a run is due.
type Janitor struct {
	store     Store
	schedule  cron.Schedule
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewJanitor creates a janitor for store. The schedule is usually built with config.ParseSchedule.
func NewJanitor(store Store, schedule cron.Schedule, retention time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		schedule:  schedule,
		retention: retention,
		interval:  30 * time.Second,
		now:       time.Now,
		logger:    logging.Component("jobs"),
	}
}

// Start runs the janitor until ctx is cancelled. The returned channel closes when it exits.
func (j *Janitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(j.interval)
	nextRun := j.schedule.Next(j.now())

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("stopping job janitor")
				return
			case <-ticker.C:
				now := j.now()
				if now.Before(nextRun) {
					continue
				}
				j.RunOnce(now)
				nextRun = j.schedule.Next(now)
			}
		}
	}()

	return done
}

// RunOnce prunes every terminal job that completed before now minus retention.
func (j *Janitor) RunOnce(now time.Time) int {
	removed, err := j.store.Prune(now.Add(-j.retention))
	if err != nil {
		j.logger.Warn("job prune failed", "error", err)
		return 0
	}
	if removed > 0 {
		j.logger.Info("pruned finished jobs", "count", removed)
	}
	return removed
}

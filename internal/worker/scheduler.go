package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/metagram-net/metagram.net/internal/store"
)

// RecurringJob is a job the scheduler enqueues on every tick. The enqueue is
// unique per type tag: if an unfinished job with the same tag is already
// queued or running, no new row is inserted, so slow runs never pile up.
type RecurringJob struct {
	Type   string
	Params any
}

// Scheduler turns wall-clock time into job rows. It is the only recurrence
// mechanism: each run of a recurring job is a discrete enqueue, not a cron
// expression stored anywhere.
type Scheduler struct {
	store    *store.Store
	interval time.Duration
	jobs     []RecurringJob
}

// NewScheduler creates a Scheduler that enqueues jobs every interval.
func NewScheduler(st *store.Store, interval time.Duration, jobs ...RecurringJob) *Scheduler {
	return &Scheduler{store: st, interval: interval, jobs: jobs}
}

// Run enqueues once immediately, then on every interval tick until ctx is
// cancelled. Enqueue failures are logged and retried next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval, "jobs", len(s.jobs))

	s.enqueueAll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.enqueueAll(ctx)
		}
	}
}

func (s *Scheduler) enqueueAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, job := range s.jobs {
		if _, err := s.store.EnqueueUniqueJob(ctx, job.Type, job.Params, now); err != nil {
			slog.Error("schedule job error", "job_type", job.Type, "error", err)
		}
	}
}

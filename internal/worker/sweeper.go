package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/metagram-net/metagram.net/internal/store"
)

// Sweeper periodically deletes old, successfully finished job rows to bound
// the jobs table's growth. It runs on its own schedule, independent of the
// dispatcher, and is never in the critical path of job execution: a failed
// sweep is logged and retried next cycle.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	// retention is how long successful job rows are kept. Failed jobs are
	// never deleted by the sweeper.
	retention time.Duration
}

// NewSweeper creates a Sweeper.
func NewSweeper(st *store.Store, interval, retention time.Duration) *Sweeper {
	return &Sweeper{store: st, interval: interval, retention: retention}
}

// Run sweeps once immediately, then on every interval tick until ctx is
// cancelled. Uses time.NewTicker (not time.After) to avoid timer leaks.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper started", "interval", s.interval, "retention", s.retention)

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("sweep error", "error", err)
		return
	}
	if n > 0 {
		slog.Info("swept finished jobs", "count", n)
	}
}

// RunOnce deletes successful jobs older than the retention window and
// returns the number deleted. Used by the Run loop and the one-shot CLI
// command.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.store.SweepJobs(ctx, time.Now().UTC().Add(-s.retention))
}

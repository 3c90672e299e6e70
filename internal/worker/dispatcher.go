package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metagram-net/metagram.net/internal/store"
)

// completeTimeout bounds the terminal-state write after a handler returns.
// It uses a context detached from the worker's, so a shutdown signal cannot
// leave a claimed job without a recorded outcome.
const completeTimeout = 10 * time.Second

// Dispatcher polls the job store and executes claimed jobs. Each of its
// worker goroutines claims at most one job per tick; the claim query's
// skip-locked discipline means loops never block on one another.
type Dispatcher struct {
	store        *store.Store
	workers      int
	pollInterval time.Duration
	// jobTimeout bounds one handler run, independent of any timeout the
	// handler enforces internally.
	jobTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher with the given number of polling
// goroutines.
func NewDispatcher(st *store.Store, workers int, pollInterval, jobTimeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:        st,
		workers:      workers,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		handlers:     make(map[string]Handler),
	}
}

// Register associates h with the given job type tag. Must be called before
// Start.
func (d *Dispatcher) Register(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

// Start launches the polling goroutines and blocks until ctx is cancelled.
// On cancellation the loops stop claiming new jobs, any in-flight job gets
// its outcome recorded, and Start returns once all goroutines have exited.
func (d *Dispatcher) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d.runLoop(ctx, n)
		}(i)
	}
	wg.Wait()
	slog.Info("dispatcher stopped")
}

// runLoop polls for jobs until ctx is cancelled. Uses time.NewTicker (not
// time.After) to avoid timer leaks.
func (d *Dispatcher) runLoop(ctx context.Context, n int) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	slog.Info("dispatcher loop started", "worker", n, "poll_interval", d.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher loop stopping", "worker", n)
			return
		case <-ticker.C:
			d.processOne(ctx)
		}
	}
}

// processOne claims one job and executes it. Store errors are logged but do
// not stop the polling loop — the goroutine continues to the next tick.
func (d *Dispatcher) processOne(ctx context.Context) {
	job, err := d.store.ClaimNextJob(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("claim job error", "error", err)
		return
	}
	if job == nil {
		return // no job eligible; normal case
	}

	slog.Info("executing job", "job_id", job.ID)
	d.complete(ctx, job.ID, d.runJob(ctx, job))
}

// runJob decodes the type tag, routes to the registered handler, and runs it
// under the per-job timeout. The returned error is the job's outcome.
func (d *Dispatcher) runJob(ctx context.Context, job *store.Job) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(job.Params, &envelope); err != nil {
		return fmt.Errorf("invalid job params: %w", err)
	}

	d.mu.RLock()
	h := d.handlers[envelope.Type]
	d.mu.RUnlock()

	if h == nil {
		// A configuration error: terminal, not retried.
		return fmt.Errorf("unknown job type: %s", envelope.Type)
	}

	return d.execute(ctx, h, job.Params)
}

// execute runs h under the job timeout, converting a panic into an error so
// one bad job cannot crash the loop. A handler that outlives the timeout is
// abandoned: its goroutine keeps running until it notices the cancelled
// context, but its eventual return value is discarded.
func (d *Dispatcher) execute(ctx context.Context, h Handler, payload json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("handler panic: %v", p)
			}
		}()
		done <- h(ctx, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("job abandoned after %s: %w", d.jobTimeout, ctx.Err())
	}
}

// complete writes the job's terminal state. It runs on a context detached
// from ctx's cancellation so that shutdown cannot strand a job with
// started_at set forever.
func (d *Dispatcher) complete(ctx context.Context, jobID uuid.UUID, outcome error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()

	var jobErr *string
	if outcome != nil {
		msg := outcome.Error()
		jobErr = &msg
		slog.Error("job failed", "job_id", jobID, "error", outcome)
	}

	if _, err := d.store.CompleteJob(cctx, jobID, jobErr); err != nil {
		if errors.Is(err, store.ErrJobAlreadyFinished) {
			// Invariant violation: something else recorded an outcome for a
			// job this worker claimed. Surface loudly, never overwrite.
			slog.Error("job completed twice", "job_id", jobID, "error", err)
			return
		}
		slog.Error("complete job error", "job_id", jobID, "error", err)
		return
	}
	if outcome == nil {
		slog.Info("job completed", "job_id", jobID)
	}
}

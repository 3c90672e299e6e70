package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrJobAlreadyFinished is returned by CompleteJob when the job already has
// finished_at set. A job must be completed exactly once; a second completion
// is an invariant violation that callers should surface loudly rather than
// overwrite the recorded outcome.
var ErrJobAlreadyFinished = errors.New("job already finished")

// Job is one durable unit of deferred work. Params is a tagged JSON payload;
// the "type" field selects the handler. StartedAt is set exactly once when a
// worker claims the job, FinishedAt exactly once when the run completes.
// Error is present iff the run failed.
type Job struct {
	ID          uuid.UUID
	Params      json.RawMessage
	ScheduledAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Error       *string
}

const jobColumns = "id, params, scheduled_at, started_at, finished_at, error"

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Params, &j.ScheduledAt, &j.StartedAt, &j.FinishedAt, &j.Error)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// EnqueueJob inserts a new pending job. params is marshalled to JSON; it must
// carry the type tag that routes the job to a handler. scheduledAt is the
// earliest time the job becomes eligible to run.
func (s *Store) EnqueueJob(ctx context.Context, params any, scheduledAt time.Time) (*Job, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}
	job, err := scanJob(s.pool.QueryRow(ctx, `
		insert into jobs (params, scheduled_at)
		values ($1, $2)
		returning `+jobColumns,
		payload, scheduledAt,
	))
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueUniqueJob enqueues params unless an unfinished job with the same
// type tag already exists, in which case the existing job is returned. Used
// by the scheduler so recurring jobs never pile up behind a slow run.
func (s *Store) EnqueueUniqueJob(ctx context.Context, typeTag string, params any, scheduledAt time.Time) (*Job, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}

	var job *Job
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		existing, err := scanJob(tx.QueryRow(ctx, `
			select `+jobColumns+`
			from jobs
			where params ->> 'type' = $1
			and finished_at is null
			limit 1`,
			typeTag,
		))
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("find unfinished job: %w", err)
		}

		job, err = scanJob(tx.QueryRow(ctx, `
			insert into jobs (params, scheduled_at)
			values ($1, $2)
			returning `+jobColumns,
			payload, scheduledAt,
		))
		if err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNextJob atomically claims the oldest pending job whose scheduled_at is
// at or before now, setting started_at. FOR UPDATE SKIP LOCKED guarantees
// each job is handed to exactly one caller and that losing racers move on to
// a different row instead of blocking. Returns (nil, nil) when no job is
// currently eligible — that is the normal idle case, not an error.
func (s *Store) ClaimNextJob(ctx context.Context, now time.Time) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		update jobs
		set started_at = $1
		where id = (
			select id from jobs
			where started_at is null
			and scheduled_at <= $1
			order by scheduled_at asc
			for update skip locked
			limit 1
		)
		returning `+jobColumns,
		now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// CompleteJob records the terminal outcome of a job run: finished_at is set
// to now, and error holds the failure message (nil for success). Completing
// a job that is already finished returns ErrJobAlreadyFinished without
// touching the stored outcome.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, jobErr *string) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		update jobs
		set finished_at = now()
		  , error = $2
		where id = $1
		and finished_at is null
		returning `+jobColumns,
		id, jobErr,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete job %s: %w", id, ErrJobAlreadyFinished)
	}
	if err != nil {
		return nil, fmt.Errorf("complete job %s: %w", id, err)
	}
	return job, nil
}

// SweepJobs deletes successfully finished jobs whose finished_at is before
// olderThan and returns the number deleted. Failed jobs (error set) are kept
// for inspection; pending and in-flight jobs are never touched.
func (s *Store) SweepJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		delete from jobs
		where finished_at < $1
		and error is null`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetJob returns the job with the given id, or (nil, nil) if not found.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`select `+jobColumns+` from jobs where id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

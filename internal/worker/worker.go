// Package worker drives the background job lifecycle: a dispatcher that
// claims jobs from the jobs table and routes them to handlers by type tag, a
// retention sweeper that deletes old successful job rows, and a scheduler
// that enqueues recurring jobs.
//
// Handlers are registered per job type before calling Dispatcher.Start.
// Claiming uses the store's FOR UPDATE SKIP LOCKED query, so any number of
// dispatcher loops — in this process or others — can run concurrently
// without handing the same job to two of them.
package worker

import (
	"context"
	"encoding/json"
)

// Handler is the function executed for each claimed job. The payload is the
// job's full params document, including the type tag. A non-nil return value
// is recorded as the job's error; nil marks the job succeeded. Jobs are
// never retried automatically — recovery is a future independently-enqueued
// job.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Package firehose implements the feed-polling side of Metagram: the
// hydrant_fetch job handler that turns feed entries into drops, and the
// hydrate_all handler that fans out fetch jobs for stale hydrants.
package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/metagram-net/metagram.net/internal/feed"
	"github.com/metagram-net/metagram.net/internal/store"
)

// Firehose executes feed-polling jobs against the store.
type Firehose struct {
	store   *store.Store
	fetcher *feed.Fetcher
	// staleAfter is the age at which an active hydrant is due for a fetch.
	staleAfter time.Duration
}

// New creates a Firehose.
func New(st *store.Store, fetcher *feed.Fetcher, staleAfter time.Duration) *Firehose {
	return &Firehose{store: st, fetcher: fetcher, staleAfter: staleAfter}
}

// HandleHydrantFetch runs one hydrant_fetch job end-to-end inside a single
// transaction: row-lock the hydrant, fetch its feed, create drops for
// entries the user hasn't saved yet, and advance fetched_at.
//
// The transaction makes the handler idempotent under partial prior runs: a
// failure anywhere rolls back every insert and leaves fetched_at unchanged,
// and the (user_id, url) dedup check skips anything a previous run already
// committed.
func (f *Firehose) HandleHydrantFetch(ctx context.Context, payload json.RawMessage) error {
	var params HydrantFetchParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return fmt.Errorf("decode hydrant_fetch params: %w", err)
	}
	now := time.Now().UTC()

	return f.store.WithTx(ctx, func(tx pgx.Tx) error {
		// The row lock serializes fetches of the same hydrant. Different
		// hydrants lock different rows and proceed in parallel.
		hydrant, err := f.store.GetHydrantForUpdate(ctx, tx, params.HydrantID)
		if err != nil {
			return err
		}
		if hydrant == nil {
			return fmt.Errorf("hydrant %s not found", params.HydrantID)
		}

		// Inactive hydrants are intentionally skipped, not errors.
		if !hydrant.Active {
			slog.Info("skipping inactive hydrant", "hydrant_id", hydrant.ID)
			return nil
		}

		entries, err := f.fetcher.Fetch(ctx, hydrant.URL)
		if err != nil {
			// Surfaced as the job's failure; fetched_at stays unchanged so
			// a later run retries from the same point.
			return err
		}

		created := 0
		for _, entry := range entries {
			exists, err := f.store.DropURLExists(ctx, tx, hydrant.UserID, entry.URL)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			var title *string
			if entry.Title != "" {
				title = &entry.Title
			}
			if _, err := f.store.CreateDropTx(ctx, tx, hydrant.UserID, title, entry.URL, hydrant.TagIDs, now); err != nil {
				return err
			}
			created++
		}

		if err := f.store.TouchHydrantFetchedAt(ctx, tx, hydrant.ID, now); err != nil {
			return err
		}

		slog.Info("hydrant fetched",
			"hydrant_id", hydrant.ID, "entries", len(entries), "new_drops", created)
		return nil
	})
}

// HandleHydrateAll enqueues one hydrant_fetch job for every active hydrant
// that has never been fetched or whose last fetch is older than the
// staleness window.
func (f *Firehose) HandleHydrateAll(ctx context.Context, _ json.RawMessage) error {
	now := time.Now().UTC()

	stale, err := f.store.ListStaleHydrants(ctx, now.Add(-f.staleAfter))
	if err != nil {
		return err
	}

	for _, hydrant := range stale {
		if _, err := f.store.EnqueueJob(ctx, HydrantFetch(hydrant.ID), now); err != nil {
			return fmt.Errorf("enqueue fetch for hydrant %s: %w", hydrant.ID, err)
		}
	}

	slog.Info("hydrate_all scheduled fetches", "hydrants", len(stale))
	return nil
}

// Integration tests for hydrant persistence: CRUD, row locking, staleness.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metagram-net/metagram.net/internal/store"
	"github.com/metagram-net/metagram.net/internal/testutil"
)

func TestCreateAndGetHydrant(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "hydrant-crud@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	tag, err := s.CreateTag(ctx, user.ID, "news", "")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	h, err := s.CreateHydrant(ctx, user.ID, "Example", "https://example.com/feed", true, []uuid.UUID{tag.ID})
	if err != nil {
		t.Fatalf("CreateHydrant: %v", err)
	}
	if h.FetchedAt != nil {
		t.Error("new hydrant should have nil fetched_at")
	}
	if len(h.TagIDs) != 1 || h.TagIDs[0] != tag.ID {
		t.Errorf("TagIDs = %v, want [%s]", h.TagIDs, tag.ID)
	}

	got, err := s.GetHydrant(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHydrant: %v", err)
	}
	if got == nil || got.Name != "Example" || !got.Active {
		t.Errorf("GetHydrant = %+v", got)
	}

	missing, err := s.GetHydrant(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetHydrant(missing): %v", err)
	}
	if missing != nil {
		t.Error("GetHydrant for unknown id should return nil")
	}
}

func TestUpdateHydrant_PartialFields(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "hydrant-update@example.com")
	h, err := s.CreateHydrant(ctx, user.ID, "Old name", "https://example.com/feed", true, nil)
	if err != nil {
		t.Fatalf("CreateHydrant: %v", err)
	}

	name := "New name"
	active := false
	updated, err := s.UpdateHydrant(ctx, h.ID, store.HydrantFields{Name: &name, Active: &active})
	if err != nil {
		t.Fatalf("UpdateHydrant: %v", err)
	}
	if updated.Name != "New name" || updated.Active {
		t.Errorf("updated = %+v, want name %q active=false", updated, name)
	}
	// URL was not in the field set and must be unchanged.
	if updated.URL != h.URL {
		t.Errorf("URL changed: %q != %q", updated.URL, h.URL)
	}

	// A no-op update returns the current row.
	same, err := s.UpdateHydrant(ctx, h.ID, store.HydrantFields{})
	if err != nil {
		t.Fatalf("UpdateHydrant (no fields): %v", err)
	}
	if same.Name != "New name" {
		t.Errorf("no-op update returned %+v", same)
	}
}

func TestTouchHydrantFetchedAt(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "hydrant-touch@example.com")
	h, _ := s.CreateHydrant(ctx, user.ID, "Touched", "https://example.com/feed", true, nil)

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.GetHydrantForUpdate(ctx, tx, h.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			t.Fatal("GetHydrantForUpdate returned nil for existing hydrant")
		}
		return s.TouchHydrantFetchedAt(ctx, tx, h.ID, now)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, _ := s.GetHydrant(ctx, h.ID)
	if got.FetchedAt == nil || !got.FetchedAt.Equal(now) {
		t.Errorf("fetched_at = %v, want %v", got.FetchedAt, now)
	}
}

func TestListStaleHydrants(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "hydrant-stale@example.com")
	now := time.Now().UTC()
	cutoff := now.Add(-time.Hour)

	never, _ := s.CreateHydrant(ctx, user.ID, "Never fetched", "https://example.com/a", true, nil)
	stale, _ := s.CreateHydrant(ctx, user.ID, "Stale", "https://example.com/b", true, nil)
	fresh, _ := s.CreateHydrant(ctx, user.ID, "Fresh", "https://example.com/c", true, nil)
	inactive, _ := s.CreateHydrant(ctx, user.ID, "Inactive", "https://example.com/d", false, nil)

	touch := func(id uuid.UUID, at time.Time) {
		err := s.WithTx(ctx, func(tx pgx.Tx) error {
			return s.TouchHydrantFetchedAt(ctx, tx, id, at)
		})
		if err != nil {
			t.Fatalf("touch %s: %v", id, err)
		}
	}
	touch(stale.ID, now.Add(-2*time.Hour))
	touch(fresh.ID, now.Add(-time.Minute))
	touch(inactive.ID, now.Add(-2*time.Hour))

	got, err := s.ListStaleHydrants(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStaleHydrants: %v", err)
	}

	ids := make(map[uuid.UUID]bool, len(got))
	for _, h := range got {
		ids[h.ID] = true
	}
	if len(got) != 2 || !ids[never.ID] || !ids[stale.ID] {
		t.Errorf("stale set = %v, want {%s, %s}", ids, never.ID, stale.ID)
	}
	// Never-fetched hydrants sort before stale ones.
	if got[0].ID != never.ID {
		t.Errorf("first stale hydrant = %s, want never-fetched %s", got[0].ID, never.ID)
	}
}

// Integration tests for drop persistence: creation with tags, the
// (user_id, url) dedup check, and filtered listing.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/metagram-net/metagram.net/internal/store"
	"github.com/metagram-net/metagram.net/internal/testutil"
)

func TestCreateDrop_WithTags(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "drops-create@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	tag, err := s.CreateTag(ctx, user.ID, "golang", "#00ADD8")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	title := "A post"
	now := time.Now().UTC().Truncate(time.Microsecond)
	drop, err := s.CreateDrop(ctx, user.ID, &title, "https://example.com/post", []uuid.UUID{tag.ID}, now)
	if err != nil {
		t.Fatalf("CreateDrop: %v", err)
	}

	if drop.Status != store.DropStatusUnread {
		t.Errorf("Status = %q, want unread", drop.Status)
	}
	if !drop.MovedAt.Equal(now) {
		t.Errorf("MovedAt = %v, want %v", drop.MovedAt, now)
	}
	if drop.Title == nil || *drop.Title != title {
		t.Errorf("Title = %v, want %q", drop.Title, title)
	}

	tagIDs, err := s.ListDropTagIDs(ctx, drop.ID)
	if err != nil {
		t.Fatalf("ListDropTagIDs: %v", err)
	}
	if len(tagIDs) != 1 || tagIDs[0] != tag.ID {
		t.Errorf("tag ids = %v, want [%s]", tagIDs, tag.ID)
	}
}

func TestCreateDrop_NilTitle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "drops-nil-title@example.com")
	drop, err := s.CreateDrop(ctx, user.ID, nil, "https://example.com/untitled", nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateDrop: %v", err)
	}
	if drop.Title != nil {
		t.Errorf("Title = %q, want nil", *drop.Title)
	}
}

func TestDropURLExists(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "drops-exists@example.com")
	other, _ := s.CreateUser(ctx, "drops-exists-other@example.com")

	if _, err := s.CreateDrop(ctx, user.ID, nil, "https://example.com/seen", nil, time.Now().UTC()); err != nil {
		t.Fatalf("CreateDrop: %v", err)
	}

	exists, err := s.DropURLExists(ctx, s.Pool(), user.ID, "https://example.com/seen")
	if err != nil {
		t.Fatalf("DropURLExists: %v", err)
	}
	if !exists {
		t.Error("expected existing url to be found")
	}

	// Dedup is an exact string match.
	exists, err = s.DropURLExists(ctx, s.Pool(), user.ID, "https://example.com/seen/")
	if err != nil {
		t.Fatalf("DropURLExists: %v", err)
	}
	if exists {
		t.Error("trailing slash should not match")
	}

	// Dedup is scoped per user.
	exists, err = s.DropURLExists(ctx, s.Pool(), other.ID, "https://example.com/seen")
	if err != nil {
		t.Fatalf("DropURLExists: %v", err)
	}
	if exists {
		t.Error("another user's drop should not match")
	}
}

func TestListDrops_Filters(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "drops-list@example.com")
	now := time.Now().UTC()

	older, _ := s.CreateDrop(ctx, user.ID, nil, "https://example.com/1", nil, now.Add(-time.Hour))
	newer, _ := s.CreateDrop(ctx, user.ID, nil, "https://example.com/2", nil, now)

	unread, err := s.ListDrops(ctx, user.ID, store.DropFilters{Status: store.DropStatusUnread}, 0)
	if err != nil {
		t.Fatalf("ListDrops: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("len(unread) = %d, want 2", len(unread))
	}
	// Most recently moved first.
	if unread[0].ID != newer.ID || unread[1].ID != older.ID {
		t.Errorf("order = [%s %s], want [%s %s]", unread[0].ID, unread[1].ID, newer.ID, older.ID)
	}

	read, err := s.ListDrops(ctx, user.ID, store.DropFilters{Status: store.DropStatusRead}, 0)
	if err != nil {
		t.Fatalf("ListDrops: %v", err)
	}
	if len(read) != 0 {
		t.Errorf("len(read) = %d, want 0", len(read))
	}

	byURL, err := s.ListDrops(ctx, user.ID, store.DropFilters{URL: "https://example.com/1"}, 0)
	if err != nil {
		t.Fatalf("ListDrops: %v", err)
	}
	if len(byURL) != 1 || byURL[0].ID != older.ID {
		t.Errorf("byURL = %v, want [%s]", byURL, older.ID)
	}
}

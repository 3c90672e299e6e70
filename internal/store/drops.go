package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DropStatus is the triage state of a saved item.
type DropStatus string

const (
	DropStatusUnread DropStatus = "unread"
	DropStatusRead   DropStatus = "read"
	DropStatusSaved  DropStatus = "saved"
)

// Drop is a single saved content item.
type Drop struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     *string
	URL       string
	Status    DropStatus
	MovedAt   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

const dropColumns = "id, user_id, title, url, status, moved_at, created_at, updated_at"

func scanDrop(row pgx.Row) (*Drop, error) {
	var d Drop
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.URL, &d.Status,
		&d.MovedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDrop inserts a new unread drop and attaches the given tags, all in
// one transaction.
func (s *Store) CreateDrop(ctx context.Context, userID uuid.UUID, title *string, url string, tagIDs []uuid.UUID, now time.Time) (*Drop, error) {
	var drop *Drop
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		drop, err = s.CreateDropTx(ctx, tx, userID, title, url, tagIDs, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drop, nil
}

// CreateDropTx is CreateDrop inside a caller-owned transaction. The fetch
// handler uses it so the whole batch shares the hydrant's row-lock
// transaction and a storage error rolls back every insert.
func (s *Store) CreateDropTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, title *string, url string, tagIDs []uuid.UUID, now time.Time) (*Drop, error) {
	drop, err := scanDrop(tx.QueryRow(ctx, `
		insert into drops (user_id, title, url, status, moved_at)
		values ($1, $2, $3, 'unread', $4)
		returning `+dropColumns,
		userID, title, url, now,
	))
	if err != nil {
		return nil, fmt.Errorf("create drop: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx, `
			insert into drop_tags (drop_id, tag_id)
			values ($1, $2)
			on conflict do nothing`,
			drop.ID, tagID,
		); err != nil {
			return nil, fmt.Errorf("tag drop %s with %s: %w", drop.ID, tagID, err)
		}
	}
	return drop, nil
}

// DropURLExists reports whether the user already has a drop with exactly this
// URL. This is the feed deduplication check; it runs on q so the fetch
// handler can call it inside its hydrant-locked transaction.
func (s *Store) DropURLExists(ctx context.Context, q querier, userID uuid.UUID, url string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`select exists (select 1 from drops where user_id = $1 and url = $2)`,
		userID, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check drop url: %w", err)
	}
	return exists, nil
}

// GetDrop returns the user's drop with the given id, or (nil, nil) if not found.
func (s *Store) GetDrop(ctx context.Context, userID, id uuid.UUID) (*Drop, error) {
	d, err := scanDrop(s.pool.QueryRow(ctx,
		`select `+dropColumns+` from drops where user_id = $1 and id = $2`,
		userID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get drop %s: %w", id, err)
	}
	return d, nil
}

// DropFilters narrows ListDrops. Zero-valued fields are ignored.
type DropFilters struct {
	Status DropStatus
	URL    string
}

// ListDrops returns the user's drops matching filters, most recently moved
// first, capped at limit (default 100).
func (s *Store) ListDrops(ctx context.Context, userID uuid.UUID, filters DropFilters, limit uint64) ([]Drop, error) {
	if limit == 0 {
		limit = 100
	}
	q := psql.Select(dropColumns).
		From("drops").
		Where("user_id = ?", userID).
		OrderBy("moved_at desc").
		Limit(limit)
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.URL != "" {
		q = q.Where("url = ?", filters.URL)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build drop list: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list drops: %w", err)
	}
	defer rows.Close()

	var out []Drop
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drop: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drops: %w", err)
	}
	return out, nil
}

// ListDropTagIDs returns the tag ids attached to a drop.
func (s *Store) ListDropTagIDs(ctx context.Context, dropID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`select tag_id from drop_tags where drop_id = $1 order by tag_id`, dropID,
	)
	if err != nil {
		return nil, fmt.Errorf("list drop tags: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan drop tag: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drop tags: %w", err)
	}
	return out, nil
}

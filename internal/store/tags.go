package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultTagColor is applied when a tag is created without an explicit color.
const DefaultTagColor = "#EEEEEE"

// Tag is a user-defined label applied to drops, directly or via a hydrant's
// tag_ids.
type Tag struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const tagColumns = "id, user_id, name, color, created_at, updated_at"

func scanTag(row pgx.Row) (*Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTag inserts a new tag for the user. An empty color falls back to
// DefaultTagColor.
func (s *Store) CreateTag(ctx context.Context, userID uuid.UUID, name, color string) (*Tag, error) {
	if color == "" {
		color = DefaultTagColor
	}
	t, err := scanTag(s.pool.QueryRow(ctx, `
		insert into tags (user_id, name, color)
		values ($1, $2, $3)
		returning `+tagColumns,
		userID, name, color,
	))
	if err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

// ListTags returns the user's tags ordered by name.
func (s *Store) ListTags(ctx context.Context, userID uuid.UUID) ([]Tag, error) {
	rows, err := s.pool.Query(ctx,
		`select `+tagColumns+` from tags where user_id = $1 order by name`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Hydrant is a registered feed source owned by a user. The fetch handler
// mutates only FetchedAt; everything else is managed by the CRUD layer.
type Hydrant struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	URL       string
	Active    bool
	TagIDs    []uuid.UUID
	FetchedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

const hydrantColumns = "id, user_id, name, url, active, tag_ids, fetched_at, created_at, updated_at"

func scanHydrant(row pgx.Row) (*Hydrant, error) {
	var h Hydrant
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.URL, &h.Active, &h.TagIDs,
		&h.FetchedAt, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHydrant inserts a new hydrant for the given user.
func (s *Store) CreateHydrant(ctx context.Context, userID uuid.UUID, name, url string, active bool, tagIDs []uuid.UUID) (*Hydrant, error) {
	if tagIDs == nil {
		tagIDs = []uuid.UUID{}
	}
	h, err := scanHydrant(s.pool.QueryRow(ctx, `
		insert into hydrants (user_id, name, url, active, tag_ids)
		values ($1, $2, $3, $4, $5)
		returning `+hydrantColumns,
		userID, name, url, active, tagIDs,
	))
	if err != nil {
		return nil, fmt.Errorf("create hydrant: %w", err)
	}
	return h, nil
}

// GetHydrant returns the hydrant with the given id, or (nil, nil) if not found.
func (s *Store) GetHydrant(ctx context.Context, id uuid.UUID) (*Hydrant, error) {
	h, err := scanHydrant(s.pool.QueryRow(ctx,
		`select `+hydrantColumns+` from hydrants where id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hydrant %s: %w", id, err)
	}
	return h, nil
}

// GetHydrantForUpdate loads a hydrant inside tx with an exclusive row lock,
// serializing concurrent fetches of the same hydrant for the duration of the
// transaction. Returns (nil, nil) if the hydrant does not exist.
func (s *Store) GetHydrantForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Hydrant, error) {
	h, err := scanHydrant(tx.QueryRow(ctx,
		`select `+hydrantColumns+` from hydrants where id = $1 for update`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock hydrant %s: %w", id, err)
	}
	return h, nil
}

// TouchHydrantFetchedAt records a successful poll time inside tx.
func (s *Store) TouchHydrantFetchedAt(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	if _, err := tx.Exec(ctx,
		`update hydrants set fetched_at = $1, updated_at = now() where id = $2`,
		now, id,
	); err != nil {
		return fmt.Errorf("touch hydrant %s fetched_at: %w", id, err)
	}
	return nil
}

// HydrantFields holds the optional fields for UpdateHydrant. Nil fields are
// left unchanged.
type HydrantFields struct {
	Name   *string
	URL    *string
	Active *bool
	TagIDs []uuid.UUID
}

// UpdateHydrant applies the non-nil fields to the hydrant and returns the
// updated row. A no-op update returns the current row.
func (s *Store) UpdateHydrant(ctx context.Context, id uuid.UUID, fields HydrantFields) (*Hydrant, error) {
	q := psql.Update("hydrants").Set("updated_at", sq.Expr("now()"))
	assigned := false
	if fields.Name != nil {
		q = q.Set("name", *fields.Name)
		assigned = true
	}
	if fields.URL != nil {
		q = q.Set("url", *fields.URL)
		assigned = true
	}
	if fields.Active != nil {
		q = q.Set("active", *fields.Active)
		assigned = true
	}
	if fields.TagIDs != nil {
		q = q.Set("tag_ids", fields.TagIDs)
		assigned = true
	}
	if !assigned {
		return s.GetHydrant(ctx, id)
	}

	sql, args, err := q.Where("id = ?", id).Suffix("returning " + hydrantColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hydrant update: %w", err)
	}
	h, err := scanHydrant(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, fmt.Errorf("update hydrant %s: %w", id, err)
	}
	return h, nil
}

// ListHydrants returns all hydrants owned by userID, newest first.
func (s *Store) ListHydrants(ctx context.Context, userID uuid.UUID) ([]Hydrant, error) {
	rows, err := s.pool.Query(ctx,
		`select `+hydrantColumns+` from hydrants where user_id = $1 order by created_at desc`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list hydrants: %w", err)
	}
	defer rows.Close()
	return collectHydrants(rows)
}

// ListStaleHydrants returns active hydrants that have never been fetched or
// whose last fetch is before staleBefore, oldest fetch first.
func (s *Store) ListStaleHydrants(ctx context.Context, staleBefore time.Time) ([]Hydrant, error) {
	rows, err := s.pool.Query(ctx, `
		select `+hydrantColumns+`
		from hydrants
		where active
		and (fetched_at is null or fetched_at < $1)
		order by fetched_at asc nulls first`,
		staleBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale hydrants: %w", err)
	}
	defer rows.Close()
	return collectHydrants(rows)
}

func collectHydrants(rows pgx.Rows) ([]Hydrant, error) {
	var out []Hydrant
	for rows.Next() {
		h, err := scanHydrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hydrant: %w", err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hydrants: %w", err)
	}
	return out, nil
}

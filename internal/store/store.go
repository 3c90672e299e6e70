// Package store provides the data access layer over a pgx connection pool.
// Simple reads and writes run directly against the pool; multi-statement
// operations (the hydrant fetch transaction, unique enqueue) use WithTx for
// pgx native transactions. The jobs table is the durable work queue; its
// claim query relies on FOR UPDATE SKIP LOCKED so concurrent workers never
// block on each other.
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// psql is the statement builder for all dynamically assembled queries.
// Postgres uses $1-style placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is the query interface shared by *pgxpool.Pool and pgx.Tx, so
// store methods can run standalone or inside a caller's transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the central data access object.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pgxpool for callers that need raw access
// (primarily tests).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// WithTx runs fn inside a pgx transaction. The transaction is committed if
// fn returns nil, rolled back otherwise (including on panic).
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on panic or fn error
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

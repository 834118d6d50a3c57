// Package postgres implements store.Repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	batchesTable = "upload_batches"
	salesTable   = "sales_records"

	// undefinedTable is the SQLSTATE for a relation that does not exist.
	undefinedTable = "42P01"
)

// ConnectDB opens a connection pool and verifies it with a ping.
func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return dbpool, nil
}

// Store is the Postgres backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool. The store owns the pool and closes it in Close.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapError translates driver errors into the store sentinels while keeping
// the original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %w", store.ErrSchemaMissing, err)
	}
	return err
}

// Ensure Store implements the Repository interface.
var _ store.Repository = (*Store)(nil)

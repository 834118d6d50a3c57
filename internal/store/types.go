// Package store defines the persistence contracts shared by the Postgres,
// BigQuery and in-memory backends.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/sales-tracker/internal/domain"
)

var (
	// ErrNotFound is returned when a batch does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSchemaMissing is returned when a backend table has not been created.
	ErrSchemaMissing = errors.New("schema missing")
)

const (
	// MaxHistoryLimit caps a history listing.
	MaxHistoryLimit = 20
	// MaxErrorMessageLen caps the error_message column of an upload batch.
	MaxErrorMessageLen = 2000
)

// HistoryFilter narrows ListBatches. A zero Entity matches every entity.
type HistoryFilter struct {
	Entity domain.Entity
	Limit  int
}

// Normalize clamps Limit to 1..MaxHistoryLimit; zero means the maximum.
func (f HistoryFilter) Normalize() HistoryFilter {
	switch {
	case f.Limit <= 0, f.Limit > MaxHistoryLimit:
		f.Limit = MaxHistoryLimit
	}
	return f
}

// HistoryRepository provides the upload audit trail.
type HistoryRepository interface {
	// CreateBatch inserts a batch, normally with status processing.
	CreateBatch(ctx context.Context, batch *domain.UploadBatch) error

	// FinalizeBatch records the terminal status, inserted row count and
	// error message of a batch. The message is truncated to MaxErrorMessageLen.
	FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error

	// GetBatch returns one batch, or ErrNotFound.
	GetBatch(ctx context.Context, batchID string) (*domain.UploadBatch, error)

	// ListBatches returns batches newest first.
	ListBatches(ctx context.Context, filter HistoryFilter) ([]*domain.UploadBatch, error)

	// FindCompletedBatchByChecksum returns the newest completed batch of an
	// entity with the given checksum, or nil when there is none.
	FindCompletedBatchByChecksum(ctx context.Context, entity domain.Entity, checksum string) (*domain.UploadBatch, error)
}

// SalesRepository provides the sales fact table.
type SalesRepository interface {
	// InsertSalesRows inserts rows atomically: all of them or none.
	InsertSalesRows(ctx context.Context, rows []*domain.CanonicalRow) error

	// DeleteRowsByBatch removes the fact rows of a batch and returns how many
	// were deleted.
	DeleteRowsByBatch(ctx context.Context, batchID string) (int64, error)
}

// AggregationRepository serves dashboard summaries.
type AggregationRepository interface {
	Summarize(ctx context.Context, q domain.AggregationQuery) ([]domain.SummaryRow, error)
}

// Repository is implemented by every backend.
type Repository interface {
	HistoryRepository
	SalesRepository
	AggregationRepository
	Close() error
}

// TruncateErrorMessage shortens msg to MaxErrorMessageLen bytes without
// splitting a UTF-8 sequence.
func TruncateErrorMessage(msg string) string {
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	cut := MaxErrorMessageLen
	for cut > 0 && !utf8RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/jackc/pgx/v5"
)

const batchColumns = `batch_id, entity, file_name, content_type, checksum, source_uri,
	rows_total, rows_inserted, status, error_message, created_at, finished_at`

// CreateBatch inserts the audit row of a new upload.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.UploadBatch) error {
	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
	INSERT INTO upload_batches (batch_id, entity, file_name, content_type, checksum, source_uri,
		rows_total, rows_inserted, status, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		batch.BatchID,
		string(batch.Entity),
		batch.FileName,
		batch.ContentType,
		batch.Checksum,
		batch.SourceURI,
		batch.RowsTotal,
		batch.RowsInserted,
		string(batch.Status),
		store.TruncateErrorMessage(batch.ErrorMessage),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("CreateBatch: batch %s: %w", batch.BatchID, mapError(err))
	}
	return nil
}

// FinalizeBatch records the terminal state of an upload.
func (s *Store) FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error {
	query := `
	UPDATE upload_batches
	SET status = $1, rows_inserted = $2, error_message = $3, finished_at = now()
	WHERE batch_id = $4`

	tag, err := s.pool.Exec(ctx, query, string(status), rowsInserted, store.TruncateErrorMessage(errMsg), batchID)
	if err != nil {
		return fmt.Errorf("FinalizeBatch: batch %s: %w", batchID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("FinalizeBatch: batch %s: %w", batchID, store.ErrNotFound)
	}
	return nil
}

// GetBatch loads one upload.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*domain.UploadBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM upload_batches WHERE batch_id = $1`

	batch, err := scanBatch(s.pool.QueryRow(ctx, query, batchID))
	if err != nil {
		return nil, fmt.Errorf("GetBatch: batch %s: %w", batchID, mapError(err))
	}
	return batch, nil
}

// ListBatches returns the newest uploads first.
func (s *Store) ListBatches(ctx context.Context, filter store.HistoryFilter) ([]*domain.UploadBatch, error) {
	filter = filter.Normalize()

	query := `SELECT ` + batchColumns + `
	FROM upload_batches
	WHERE ($1 = '' OR entity = $1)
	ORDER BY created_at DESC, batch_id DESC
	LIMIT $2`

	rows, err := s.pool.Query(ctx, query, string(filter.Entity), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: %w", mapError(err))
	}
	defer rows.Close()

	var batches []*domain.UploadBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBatches: scan: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBatches: rows: %w", mapError(err))
	}
	return batches, nil
}

// FindCompletedBatchByChecksum returns nil when the file was never fully ingested.
func (s *Store) FindCompletedBatchByChecksum(ctx context.Context, entity domain.Entity, checksum string) (*domain.UploadBatch, error) {
	query := `SELECT ` + batchColumns + `
	FROM upload_batches
	WHERE entity = $1 AND checksum = $2 AND status = $3
	ORDER BY created_at DESC
	LIMIT 1`

	batch, err := scanBatch(s.pool.QueryRow(ctx, query, string(entity), checksum, string(domain.BatchCompleted)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCompletedBatchByChecksum: %w", mapError(err))
	}
	return batch, nil
}

func scanBatch(row pgx.Row) (*domain.UploadBatch, error) {
	var (
		batch  domain.UploadBatch
		entity string
		status string
	)
	err := row.Scan(
		&batch.BatchID,
		&entity,
		&batch.FileName,
		&batch.ContentType,
		&batch.Checksum,
		&batch.SourceURI,
		&batch.RowsTotal,
		&batch.RowsInserted,
		&status,
		&batch.ErrorMessage,
		&batch.CreatedAt,
		&batch.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	batch.Entity = domain.Entity(entity)
	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}

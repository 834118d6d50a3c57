package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"google.golang.org/api/iterator"
)

const batchColumns = `
			batch_id,
			entity,
			file_name,
			content_type,
			checksum,
			source_uri,
			rows_total,
			rows_inserted,
			status,
			error_message,
			created_at,
			finished_at`

// CreateBatch delegates to CreateBatchWithClient with the shared client.
func (r *BigQueryRepository) CreateBatch(ctx context.Context, batch *domain.UploadBatch) error {
	return CreateBatchWithClient(ctx, r.client, r.ds, batch)
}

// FinalizeBatch delegates to FinalizeBatchWithClient with the shared client.
func (r *BigQueryRepository) FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error {
	return FinalizeBatchWithClient(ctx, r.client, r.ds, batchID, status, rowsInserted, errMsg)
}

// GetBatch delegates to GetBatchWithClient with the shared client.
func (r *BigQueryRepository) GetBatch(ctx context.Context, batchID string) (*domain.UploadBatch, error) {
	return GetBatchWithClient(ctx, r.client, r.ds, batchID)
}

// ListBatches delegates to ListBatchesWithClient with the shared client.
func (r *BigQueryRepository) ListBatches(ctx context.Context, filter store.HistoryFilter) ([]*domain.UploadBatch, error) {
	return ListBatchesWithClient(ctx, r.client, r.ds, filter)
}

// FindCompletedBatchByChecksum delegates to FindCompletedBatchByChecksumWithClient.
func (r *BigQueryRepository) FindCompletedBatchByChecksum(ctx context.Context, entity domain.Entity, checksum string) (*domain.UploadBatch, error) {
	return FindCompletedBatchByChecksumWithClient(ctx, r.client, r.ds, entity, checksum)
}

// CreateBatchWithClient inserts a new row into upload_batches.
func CreateBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batch *domain.UploadBatch) error {
	created := batch.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			batch_id,
			entity,
			file_name,
			content_type,
			checksum,
			source_uri,
			rows_total,
			rows_inserted,
			status,
			error_message,
			created_at
		)
		VALUES (
			@batch_id,
			@entity,
			@file_name,
			@content_type,
			@checksum,
			@source_uri,
			@rows_total,
			@rows_inserted,
			@status,
			@error_message,
			@created_at
		)
	`, ds.Table(uploadBatchesTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batch.BatchID},
		{Name: "entity", Value: string(batch.Entity)},
		{Name: "file_name", Value: batch.FileName},
		{Name: "content_type", Value: batch.ContentType},
		{Name: "checksum", Value: batch.Checksum},
		{Name: "source_uri", Value: batch.SourceURI},
		{Name: "rows_total", Value: batch.RowsTotal},
		{Name: "rows_inserted", Value: batch.RowsInserted},
		{Name: "status", Value: string(batch.Status)},
		{Name: "error_message", Value: store.TruncateErrorMessage(batch.ErrorMessage)},
		{Name: "created_at", Value: created},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return nil
}

// FinalizeBatchWithClient sets the terminal status, finished_at, inserted
// row count and error_message of a batch.
func FinalizeBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    rows_inserted = @rows_inserted,
		    finished_at = @finished_at,
		    error_message = @error_message
		WHERE batch_id = @batch_id
	`, ds.Table(uploadBatchesTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "rows_inserted", Value: rowsInserted},
		{Name: "finished_at", Value: time.Now().UTC()},
		{Name: "error_message", Value: store.TruncateErrorMessage(errMsg)},
		{Name: "batch_id", Value: batchID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("FinalizeBatch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("FinalizeBatch: batch %s: %w", batchID, store.ErrNotFound)
	}
	return nil
}

// GetBatchWithClient loads one batch by ID.
func GetBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) (*domain.UploadBatch, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE batch_id = @batch_id
		LIMIT 1
	`, batchColumns, ds.Table(uploadBatchesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	batches, err := readBatches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("GetBatch: batch %s: %w", batchID, store.ErrNotFound)
	}
	return batches[0], nil
}

// ListBatchesWithClient returns the newest batches first.
func ListBatchesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter store.HistoryFilter) ([]*domain.UploadBatch, error) {
	filter = filter.Normalize()

	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE (@entity = "" OR entity = @entity)
		ORDER BY created_at DESC, batch_id DESC
		LIMIT @limit
	`, batchColumns, ds.Table(uploadBatchesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "entity", Value: string(filter.Entity)},
		{Name: "limit", Value: filter.Limit},
	}

	batches, err := readBatches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: %w", err)
	}
	return batches, nil
}

// FindCompletedBatchByChecksumWithClient returns the newest completed batch of
// an entity with the given file checksum, or nil.
func FindCompletedBatchByChecksumWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, entity domain.Entity, checksum string) (*domain.UploadBatch, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE entity = @entity
		  AND checksum = @checksum
		  AND status = @status
		ORDER BY created_at DESC
		LIMIT 1
	`, batchColumns, ds.Table(uploadBatchesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "entity", Value: string(entity)},
		{Name: "checksum", Value: checksum},
		{Name: "status", Value: string(domain.BatchCompleted)},
	}

	batches, err := readBatches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindCompletedBatchByChecksum: %w", err)
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return batches[0], nil
}

func readBatches(ctx context.Context, q *bigquery.Query) ([]*domain.UploadBatch, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", mapError(err))
	}

	var batches []*domain.UploadBatch
	for {
		var row UploadBatchRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		batches = append(batches, row.toDomain())
	}
	return batches, nil
}

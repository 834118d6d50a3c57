package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/domain"
)

type UploadBatchRow struct {
	BatchID  string `bigquery:"batch_id"`  // REQUIRED
	Entity   string `bigquery:"entity"`    // REQUIRED
	FileName string `bigquery:"file_name"` // REQUIRED

	ContentType bigquery.NullString `bigquery:"content_type"` // NULLABLE
	Checksum    bigquery.NullString `bigquery:"checksum"`     // NULLABLE
	SourceURI   bigquery.NullString `bigquery:"source_uri"`   // NULLABLE

	RowsTotal    int64 `bigquery:"rows_total"`    // REQUIRED
	RowsInserted int64 `bigquery:"rows_inserted"` // REQUIRED

	Status       string              `bigquery:"status"`        // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	CreatedAt  time.Time              `bigquery:"created_at"`  // REQUIRED
	FinishedAt bigquery.NullTimestamp `bigquery:"finished_at"` // NULLABLE
}

func (r *UploadBatchRow) toDomain() *domain.UploadBatch {
	batch := &domain.UploadBatch{
		BatchID:      r.BatchID,
		Entity:       domain.Entity(r.Entity),
		FileName:     r.FileName,
		ContentType:  r.ContentType.StringVal,
		Checksum:     r.Checksum.StringVal,
		SourceURI:    r.SourceURI.StringVal,
		RowsTotal:    int(r.RowsTotal),
		RowsInserted: int(r.RowsInserted),
		Status:       domain.BatchStatus(r.Status),
		ErrorMessage: r.ErrorMessage.StringVal,
		CreatedAt:    r.CreatedAt,
	}
	if r.FinishedAt.Valid {
		finished := r.FinishedAt.Timestamp
		batch.FinishedAt = &finished
	}
	return batch
}

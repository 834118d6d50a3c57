package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteRowsByBatchWithClient deletes the sales rows of one upload batch.
// Rows still in the streaming buffer cannot be deleted by DML; BigQuery
// rejects the statement until the buffer is flushed.
func DeleteRowsByBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE upload_batch_id = @batch_id
	`, ds.Table(salesRecordsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteRowsByBatch: %w", err)
	}
	return affected, nil
}

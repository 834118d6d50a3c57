// Package bigquery implements store.Repository on a BigQuery dataset.
//
// Upload batches are written with DML so they can be updated right away.
// Sales rows are streamed with the table inserter.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/store"
	"google.golang.org/api/googleapi"
)

const (
	uploadBatchesTable = "upload_batches"
	salesRecordsTable  = "sales_records"
)

// Dataset locates the tables of one deployment.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the quoted, fully qualified name of a table.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// BigQueryRepository is the concrete implementation of store.Repository
// that interacts with BigQuery. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type BigQueryRepository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewBigQueryRepository creates a repository with its own client.
func NewBigQueryRepository(ctx context.Context, ds Dataset) (*BigQueryRepository, error) {
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	return &BigQueryRepository{client: client, ds: ds}, nil
}

// NewBigQueryRepositoryWithClient wraps an existing client.
func NewBigQueryRepositoryWithClient(client *bigquery.Client, ds Dataset) *BigQueryRepository {
	return &BigQueryRepository{client: client, ds: ds}
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// runDML executes a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", mapError(err))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", mapError(err))
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", mapError(err))
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// mapError marks "table not found" responses with store.ErrSchemaMissing.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", store.ErrSchemaMissing, err)
	}
	return err
}

// Ensure BigQueryRepository implements the Repository interface.
var _ store.Repository = (*BigQueryRepository)(nil)

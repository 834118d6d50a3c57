package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/migrations"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type bigQueryTracker struct {
	client *bigquery.Client
	table  string
}

func newBigQueryTracker(ctx context.Context, projectID, datasetID string) (*bigQueryTracker, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create BigQuery client: %w", err)
	}
	return &bigQueryTracker{
		client: client,
		table:  fmt.Sprintf("`%s.%s.schema_migrations`", projectID, datasetID),
	}, nil
}

func (t *bigQueryTracker) Close() error { return t.client.Close() }

func (t *bigQueryTracker) EnsureTable(ctx context.Context) error {
	return t.run(ctx, t.client.Query(`
		CREATE TABLE IF NOT EXISTS `+t.table+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

func (t *bigQueryTracker) Applied(ctx context.Context) ([]AppliedMigration, error) {
	it, err := t.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + t.table + `
		ORDER BY version ASC
	`).Read(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64                  `bigquery:"version"`
			Name      string                 `bigquery:"name"`
			AppliedAt bigquery.NullTimestamp `bigquery:"applied_at"`
			Checksum  bigquery.NullString    `bigquery:"checksum"`
			AppliedBy bigquery.NullString    `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt.Timestamp,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// Apply runs the migration script, then records it. BigQuery has no DDL
// transactions, so a failed record leaves an applied but unrecorded file;
// the files use IF NOT EXISTS and can be re-run.
func (t *bigQueryTracker) Apply(ctx context.Context, m migrations.Migration, appliedBy string) error {
	if err := t.run(ctx, t.client.Query(m.SQL)); err != nil {
		return err
	}

	q := t.client.Query(`
		INSERT INTO ` + t.table + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	if err := t.run(ctx, q); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

func (t *bigQueryTracker) run(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

var _ Tracker = (*bigQueryTracker)(nil)

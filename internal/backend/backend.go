// Package backend opens the storage selected by configuration and wires the
// ingestion pipeline over it.
package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/sales-tracker/internal/config"
	"github.com/dvloznov/sales-tracker/internal/gcs"
	"github.com/dvloznov/sales-tracker/internal/gcsuploader"
	bq "github.com/dvloznov/sales-tracker/internal/infra/bigquery"
	"github.com/dvloznov/sales-tracker/internal/infra/memory"
	"github.com/dvloznov/sales-tracker/internal/infra/postgres"
	"github.com/dvloznov/sales-tracker/internal/mapping"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/dvloznov/sales-tracker/internal/store"
)

// Backend holds the open store and, when a bucket is configured, the
// archive storage.
type Backend struct {
	Store   store.Repository
	Storage gcs.StorageService

	closers []func() error
}

// Open connects to the configured store backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Store = postgres.NewStore(pool)
	case config.BackendBigQuery:
		repo, err := bq.NewBigQueryRepository(ctx, bq.Dataset{ProjectID: cfg.BQProjectID, DatasetID: cfg.BQDataset})
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Store = repo
	case config.BackendMemory:
		b.Store = memory.NewStore()
	default:
		return nil, fmt.Errorf("Open: unknown store backend %q", cfg.StoreBackend)
	}
	b.closers = append(b.closers, b.Store.Close)

	if cfg.GCSBucket != "" {
		svc, err := gcsuploader.NewGCSStorageService(ctx, cfg.GCSBucket)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Storage = svc
		b.closers = append(b.closers, svc.Close)
	}

	return b, nil
}

// Close releases every client in reverse order of opening.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// NewIngestor builds the ingestion pipeline from configuration.
func NewIngestor(cfg *config.Config, b *Backend, progress pipeline.ProgressFunc) (*pipeline.Ingestor, error) {
	table, err := LoadMappingTable(cfg.MappingFile)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		ChunkSize:      cfg.InsertChunkSize,
		MaxUploadBytes: cfg.MaxUploadBytes,
		FailurePolicy:  cfg.ChunkFailurePolicy,
		Table:          table,
		Progress:       progress,
	}
	if b.Storage != nil {
		opts.Archiver = b.Storage
	}
	return pipeline.NewIngestor(b.Store, b.Store, opts), nil
}

// LoadMappingTable reads a column mapping file, or returns the built-in
// table when path is empty.
func LoadMappingTable(path string) (*mapping.Table, error) {
	if path == "" {
		return mapping.Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadMappingTable: %w", err)
	}
	defer f.Close()

	table, err := mapping.Load(f)
	if err != nil {
		return nil, fmt.Errorf("LoadMappingTable: %s: %w", path, err)
	}
	return table, nil
}

package pipeline

import (
	"context"

	"github.com/dvloznov/sales-tracker/internal/store"
)

// HistoryStore records upload batches. Implemented by every backend in
// internal/infra; tests substitute mocks.
type HistoryStore = store.HistoryRepository

// SalesStore receives canonical rows.
type SalesStore = store.SalesRepository

// Archiver keeps a copy of the uploaded payload.
// This interface enables mocking and testing of storage functionality.
type Archiver interface {
	// UploadBytes stores data under objectName and returns its URI.
	UploadBytes(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

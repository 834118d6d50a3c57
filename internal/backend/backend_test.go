package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/sales-tracker/internal/config"
	"github.com/dvloznov/sales-tracker/internal/infra/memory"
	"github.com/dvloznov/sales-tracker/internal/mapping"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:       config.BackendMemory,
		MaxUploadBytes:     1 << 20,
		InsertChunkSize:    100,
		ChunkFailurePolicy: pipeline.PolicyAbort,
	}
}

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), memoryConfig())
	require.NoError(t, err)

	_, ok := b.Store.(*memory.Store)
	assert.True(t, ok, "expected the in-memory store")
	assert.Nil(t, b.Storage)
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close(), "second close is a no-op")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreBackend: "mysql"})
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestNewIngestor(t *testing.T) {
	cfg := memoryConfig()
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	in, err := NewIngestor(cfg, b, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), in.MaxUploadBytes())
}

func TestLoadMappingTable(t *testing.T) {
	table, err := LoadMappingTable("")
	require.NoError(t, err)
	assert.Same(t, mapping.Default(), table)

	path := filepath.Join(t.TempDir(), "columns.yaml")
	yaml := "columns:\n  - { header: Invoice Number, field: invoice_no, kind: text, key: true }\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	table, err = LoadMappingTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	_, ok := table.ByHeader("invoice number")
	assert.True(t, ok)

	_, err = LoadMappingTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

package config

import (
	"testing"

	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"APP_ENV", "PORT", "STORE_BACKEND", "DATABASE_URL", "BQ_PROJECT_ID", "BQ_DATASET",
	"GCS_BUCKET", "MAX_UPLOAD_BYTES", "INSERT_CHUNK_SIZE", "CHUNK_FAILURE_POLICY",
	"MAPPING_FILE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sales")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "sales", cfg.BQDataset)
	assert.Equal(t, pipeline.DefaultMaxUploadBytes, cfg.MaxUploadBytes)
	assert.Equal(t, pipeline.DefaultChunkSize, cfg.InsertChunkSize)
	assert.Equal(t, pipeline.PolicyRowFallback, cfg.ChunkFailurePolicy)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.IsProduction())
}

func TestNew_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "BigQuery")
	t.Setenv("BQ_PROJECT_ID", "proj")
	t.Setenv("BQ_DATASET", "sales_eu")
	t.Setenv("GCS_BUCKET", "archive")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("INSERT_CHUNK_SIZE", "250")
	t.Setenv("CHUNK_FAILURE_POLICY", "abort")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendBigQuery, cfg.StoreBackend)
	assert.Equal(t, "sales_eu", cfg.BQDataset)
	assert.Equal(t, "archive", cfg.GCSBucket)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	assert.Equal(t, 250, cfg.InsertChunkSize)
	assert.Equal(t, pipeline.PolicyAbort, cfg.ChunkFailurePolicy)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{"missing database url", map[string]string{}, "DATABASE_URL"},
		{"bad port", map[string]string{"STORE_BACKEND": "memory", "PORT": "http"}, "PORT"},
		{"port out of range", map[string]string{"STORE_BACKEND": "memory", "PORT": "70000"}, "PORT"},
		{"bad upload size", map[string]string{"STORE_BACKEND": "memory", "MAX_UPLOAD_BYTES": "25MB"}, "MAX_UPLOAD_BYTES"},
		{"zero chunk size", map[string]string{"STORE_BACKEND": "memory", "INSERT_CHUNK_SIZE": "0"}, "INSERT_CHUNK_SIZE"},
		{"bad policy", map[string]string{"STORE_BACKEND": "memory", "CHUNK_FAILURE_POLICY": "retry"}, "CHUNK_FAILURE_POLICY"},
		{"bad log level", map[string]string{"STORE_BACKEND": "memory", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad log format", map[string]string{"STORE_BACKEND": "memory", "LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"missing project", map[string]string{"STORE_BACKEND": "bigquery"}, "BQ_PROJECT_ID"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mysql"}, "STORE_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}

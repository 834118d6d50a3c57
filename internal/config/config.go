// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
)

const EnvProduction = "production"

type Config struct {
	Env  string
	Port int

	StoreBackend string
	DatabaseURL  string
	BQProjectID  string
	BQDataset    string
	GCSBucket    string

	MaxUploadBytes     int64
	InsertChunkSize    int
	ChunkFailurePolicy pipeline.ChunkFailurePolicy
	MappingFile        string

	LogLevel  string
	LogFormat string
}

// New reads the environment. Callers load .env files beforehand.
func New() (*Config, error) {
	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		BQProjectID:  os.Getenv("BQ_PROJECT_ID"),
		BQDataset:    getEnv("BQ_DATASET", "sales"),
		GCSBucket:    os.Getenv("GCS_BUCKET"),
		MappingFile:  os.Getenv("MAPPING_FILE"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", logger.FormatConsole),
	}

	var err error
	cfg.Port, err = getEnvAsInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	cfg.MaxUploadBytes, err = getEnvAsInt64("MAX_UPLOAD_BYTES", pipeline.DefaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}

	cfg.InsertChunkSize, err = getEnvAsInt("INSERT_CHUNK_SIZE", pipeline.DefaultChunkSize)
	if err != nil {
		return nil, err
	}

	cfg.ChunkFailurePolicy, err = pipeline.ParseChunkFailurePolicy(os.Getenv("CHUNK_FAILURE_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("invalid value for CHUNK_FAILURE_POLICY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements. Errors name the offending key.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid value for PORT: %d is out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid value for MAX_UPLOAD_BYTES: must be positive")
	}
	if c.InsertChunkSize <= 0 {
		return fmt.Errorf("invalid value for INSERT_CHUNK_SIZE: must be positive")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid value for LOG_LEVEL: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("invalid value for LOG_FORMAT: expected console or json, got '%s'", c.LogFormat)
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case BackendBigQuery:
		if c.BQProjectID == "" {
			return fmt.Errorf("BQ_PROJECT_ID environment variable is not set")
		}
		if c.BQDataset == "" {
			return fmt.Errorf("BQ_DATASET environment variable is empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid value for STORE_BACKEND: expected postgres, bigquery or memory, got '%s'", c.StoreBackend)
	}
	return nil
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

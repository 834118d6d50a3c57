package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/migrations"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Tracker applies migrations to one backend and records them in its
// schema_migrations table.
type Tracker interface {
	// EnsureTable creates schema_migrations if it does not exist.
	EnsureTable(ctx context.Context) error
	// Applied lists recorded migrations in version order.
	Applied(ctx context.Context) ([]AppliedMigration, error)
	// Apply runs one migration and records it.
	Apply(ctx context.Context, m migrations.Migration, appliedBy string) error
	Close() error
}

func main() {
	_ = godotenv.Load()

	var (
		backend     = flag.String("backend", envOr("STORE_BACKEND", migrations.BackendPostgres), "Backend to migrate: postgres or bigquery")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
		projectID   = flag.String("project", os.Getenv("BQ_PROJECT_ID"), "GCP project ID (or set BQ_PROJECT_ID)")
		datasetID   = flag.String("dataset", envOr("BQ_DATASET", "sales"), "BigQuery dataset ID (or set BQ_DATASET)")
		appliedBy   = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		dryRun      = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	*backend = strings.ToLower(*backend)
	list, err := migrations.Load(*backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	var tracker Tracker
	switch *backend {
	case migrations.BackendPostgres:
		if *databaseURL == "" {
			log.Fatal().Msg("Error: -database-url flag or DATABASE_URL is required")
		}
		tracker, err = newPostgresTracker(ctx, *databaseURL)
	case migrations.BackendBigQuery:
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
		}
		tracker, err = newBigQueryTracker(ctx, *projectID, *datasetID)
		list = renderAll(list, *projectID, *datasetID)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", *backend).Msg("Failed to connect")
	}
	defer tracker.Close()

	log.Info().Str("backend", *backend).Int("migrations", len(list)).Msg("Connected")

	count, err := migrate(ctx, tracker, list, *appliedBy, *dryRun)
	if err != nil {
		tracker.Close()
		log.Fatal().Err(err).Msg("Migration failed")
	}

	switch {
	case *dryRun:
		log.Info().Int("pending", count).Msg("Dry run finished")
	case count == 0:
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	default:
		log.Info().Int("applied", count).Msg("Successfully applied migrations")
	}
}

// migrate applies every pending migration in version order and returns how
// many were applied, or would be in a dry run. A recorded migration whose
// file has since changed stops the run.
func migrate(ctx context.Context, tracker Tracker, list []migrations.Migration, appliedBy string, dryRun bool) (int, error) {
	log := logger.FromContext(ctx)

	if err := tracker.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := tracker.Applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied migrations: %w", err)
	}
	log.Info().Int("applied", len(applied)).Msg("Found already applied migrations")

	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, m := range list {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				return count, fmt.Errorf("migration %s was modified after it was applied (checksum %s, recorded %s)",
					m.Filename, short(m.Checksum), short(am.Checksum))
			}
			logStep(log, "SKIP", m)
			continue
		}

		if dryRun {
			logStep(log, "PENDING", m)
			count++
			continue
		}

		logStep(log, "RUN", m)
		if err := tracker.Apply(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("apply %s: %w", m.Filename, err)
		}
		logStep(log, "OK", m)
		count++
	}
	return count, nil
}

func renderAll(list []migrations.Migration, projectID, datasetID string) []migrations.Migration {
	out := make([]migrations.Migration, len(list))
	for i, m := range list {
		m.SQL = migrations.Render(m.SQL, projectID, datasetID)
		out[i] = m
	}
	return out
}

func logStep(log zerolog.Logger, step string, m migrations.Migration) {
	log.Info().Str("step", step).Int("version", m.Version).Str("name", m.Name).Msgf("[%s] %04d_%s", step, m.Version, m.Name)
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

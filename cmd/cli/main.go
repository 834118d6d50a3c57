package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/sales-tracker/internal/backend"
	"github.com/dvloznov/sales-tracker/internal/config"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const commandTimeout = 5 * time.Minute

// app is shared by every subcommand once the root command has run.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	b   *backend.Backend
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if a.b != nil {
		if cerr := a.b.Close(); cerr != nil {
			a.log.Error().Err(cerr).Msg("Failed to close backend")
		}
	}
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "cli",
		Short:         "Sales Tracker CLI",
		Long:          "Ingest sales spreadsheets and inspect upload batches against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			} else {
				_ = godotenv.Load()
			}

			cfg, err := config.New()
			if err != nil {
				return err
			}
			// Results go to stdout; logs stay on stderr.
			log, err := logger.NewWithConfigWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = log

			b, err := backend.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			a.b = b
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")

	root.AddCommand(
		newIngestCmd(a),
		newHistoryCmd(a),
		newInspectCmd(a),
		newPurgeCmd(a),
	)
	return root
}

// commandContext returns a command context carrying the logger.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	return logger.WithContext(ctx, a.log), cancel
}

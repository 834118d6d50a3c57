package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/sales-tracker/internal/api/handlers"
	"github.com/dvloznov/sales-tracker/internal/api/middleware"
	"github.com/dvloznov/sales-tracker/internal/backend"
	"github.com/dvloznov/sales-tracker/internal/config"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	// Ingestion runs inside the upload request.
	writeTimeout = 5 * time.Minute
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log, err := logger.NewWithConfig(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("API server stopped")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backend")
		}
	}()

	if b.Storage == nil {
		log.Warn().Msg("No GCS bucket configured - uploads will not be archived")
	}

	ingestor, err := backend.NewIngestor(cfg, b, func(batchID string, inserted, total int) {
		log.Debug().Str("batch_id", batchID).Int("rows_inserted", inserted).Int("rows_total", total).Msg("Chunk inserted")
	})
	if err != nil {
		return err
	}

	uploadsHandler := handlers.NewUploadsHandler(ingestor, b.Store, cfg.IsProduction(), log)
	aggregationsHandler := handlers.NewAggregationsHandler(b.Store, cfg.IsProduction(), log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/uploads", only(http.MethodPost, uploadsHandler.Upload))
	mux.HandleFunc("/api/uploads/history", only(http.MethodGet, uploadsHandler.History))
	mux.HandleFunc("/api/aggregations/summary", only(http.MethodGet, aggregationsHandler.Summary))
	mux.HandleFunc("/health", only(http.MethodGet, handlers.Health))

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      withMiddleware(mux, log),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("backend", cfg.StoreBackend).
			Str("env", cfg.Env).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// withMiddleware wraps the routes. RequestID must stay outside Recovery so
// panic logs carry the request ID.
func withMiddleware(h http.Handler, log zerolog.Logger) http.Handler {
	return middleware.Chain(h,
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.CORS,
	)
}

// only rejects requests whose method is not the given one.
func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.ErrorResponse{
				Error:   "method_not_allowed",
				Message: "Method not allowed",
			})
			return
		}
		h(w, r)
	}
}

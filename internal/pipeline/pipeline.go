// Package pipeline ingests uploaded sales spreadsheets: it validates the
// request, reads the workbook, maps every record onto CanonicalRow and
// persists the rows in chunks under an audited upload batch.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/internal/mapping"
	"github.com/google/uuid"
)

// DefaultFinalizeTimeout bounds the batch status update.
const DefaultFinalizeTimeout = 30 * time.Second

// Options tune an Ingestor. Zero values take the package defaults.
type Options struct {
	ChunkSize       int
	MaxUploadBytes  int64
	FailurePolicy   ChunkFailurePolicy
	Table           *mapping.Table
	Archiver        Archiver
	Progress        ProgressFunc
	NewBatchID      func() string
	Now             func() time.Time
	FinalizeTimeout time.Duration
}

// Ingestor runs uploads through the ingestion pipeline.
type Ingestor struct {
	history  HistoryStore
	pipeline *Pipeline
	opts     Options
}

// NewIngestor wires the standard pipeline over the given stores.
func NewIngestor(history HistoryStore, sales SalesStore, opts Options) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = PolicyRowFallback
	}
	if opts.NewBatchID == nil {
		opts.NewBatchID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = DefaultFinalizeTimeout
	}

	return &Ingestor{
		history: history,
		opts:    opts,
		pipeline: NewPipeline(
			&ValidateStep{MaxUploadBytes: opts.MaxUploadBytes},
			&ParseStep{},
			&TransformStep{Transformer: NewTransformer(opts.Table)},
			&AllocateBatchStep{NewBatchID: opts.NewBatchID},
			&CreateBatchStep{History: history, Archiver: opts.Archiver, Now: opts.Now},
			&InsertRowsStep{
				Sales:     sales,
				ChunkSize: opts.ChunkSize,
				Policy:    opts.FailurePolicy,
				Progress:  opts.Progress,
			},
		),
	}
}

// MaxUploadBytes is the effective upload size limit.
func (in *Ingestor) MaxUploadBytes() int64 { return in.opts.MaxUploadBytes }

// Ingest processes one upload.
//
// Requests that fail before the batch record is written return a nil
// result. Once it is written the batch is always finalized, including after
// a panic, and the result is returned even when err is non-nil.
func (in *Ingestor) Ingest(ctx context.Context, req *UploadRequest) (result *IngestResult, err error) {
	if req == nil {
		req = &UploadRequest{}
	}
	state := &PipelineState{Request: req, Stage: StageValidating}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"file_name": req.FileName,
		"entity":    req.Entity,
	})
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stage", string(state.Stage)).
				Bytes("stack", debug.Stack()).
				Msg("Ingestion panicked")
			err = &UnexpectedError{Err: fmt.Errorf("panic while %s: %v", state.Stage, r)}
			result = nil
		}
		if state.BatchCreated {
			in.finalize(ctx, state, err)
			result = state.result()
		}
		state.Stage = StageFinalized
	}()

	err = in.pipeline.Execute(ctx, state)
	if err != nil {
		log.Warn().Err(err).Str("stage", string(state.Stage)).Msg("Ingestion failed")
		return nil, err
	}

	log.Info().
		Str("batch_id", state.BatchID).
		Int("rows_inserted", state.RowsInserted).
		Int("rows_skipped", state.RowsSkipped).
		Dur("duration", time.Since(start)).
		Msg("Ingestion finished")
	return state.result(), nil
}

// finalize records the terminal state of the batch. It outlives request
// cancellation and never fails the ingestion.
func (in *Ingestor) finalize(ctx context.Context, state *PipelineState, runErr error) {
	state.Status = finalStatus(state, runErr)

	var msg string
	switch {
	case runErr != nil:
		msg = runErr.Error()
	case state.RowsFailed > 0:
		msg = fmt.Sprintf("%d of %d rows failed to insert", state.RowsFailed, len(state.Rows))
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.opts.FinalizeTimeout)
	defer cancel()

	log := logger.FromContext(ctx)
	if err := in.history.FinalizeBatch(fctx, state.BatchID, state.Status, state.RowsInserted, msg); err != nil {
		log.Error().Err(err).
			Str("batch_id", state.BatchID).
			Str("status", string(state.Status)).
			Msg("Failed to finalize upload batch")
		return
	}
	log.Debug().
		Str("batch_id", state.BatchID).
		Str("status", string(state.Status)).
		Msg("Finalized upload batch")
}

func finalStatus(state *PipelineState, runErr error) domain.BatchStatus {
	switch {
	case runErr != nil:
		return domain.BatchFailed
	case state.RowsInserted == len(state.Rows):
		return domain.BatchCompleted
	case state.RowsInserted > 0:
		return domain.BatchPartial
	default:
		return domain.BatchFailed
	}
}

package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/sales-tracker/internal/checksum"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/internal/spreadsheet"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request  *UploadRequest
	Stage    Stage
	Entity   domain.Entity
	Checksum string
	Records  []spreadsheet.RawRecord

	// Rows are the usable canonical rows; RecordNumbers holds the 1-based
	// record each row came from.
	Rows          []*domain.CanonicalRow
	RecordNumbers []int
	RowsSkipped   int

	BatchID      string
	BatchCreated bool
	SourceURI    string
	Status       domain.BatchStatus
	RowsInserted int
	RowsFailed   int

	Warnings  messageLog
	RowErrors messageLog

	lastInsertErr error
}

func (s *PipelineState) result() *IngestResult {
	res := &IngestResult{
		BatchID:      s.BatchID,
		Entity:       s.Entity,
		FileName:     s.Request.FileName,
		Status:       s.Status,
		RowsTotal:    len(s.Rows),
		RowsInserted: s.RowsInserted,
		RowsSkipped:  s.RowsSkipped,
		Warnings:     s.Warnings.List(),
		Checksum:     s.Checksum,
		SourceURI:    s.SourceURI,
	}
	if s.RowErrors.Len() > 0 {
		res.RowErrors = s.RowErrors.List()
	}
	return res
}

// Step 1: ValidateStep checks the request and resolves its entity.
type ValidateStep struct {
	MaxUploadBytes int64
}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Stage = StageValidating
	entity, err := ValidateRequest(state.Request, s.MaxUploadBytes)
	if err != nil {
		return err
	}
	state.Entity = entity
	return nil
}

// Step 2: ParseStep reads the first sheet of the workbook.
type ParseStep struct{}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Stage = StageParsing
	records, err := spreadsheet.Read(state.Request.Data, state.Request.FileName)
	if err != nil {
		return newParseError(err)
	}
	state.Records = records
	state.Checksum = checksum.Sum(state.Request.Data)

	log := logger.FromContext(ctx)
	log.Debug().
		Int("records", len(records)).
		Str("checksum", state.Checksum).
		Msg("Parsed spreadsheet")
	return nil
}

// Step 3: TransformStep maps records to canonical rows and drops unusable ones.
type TransformStep struct {
	Transformer *Transformer
}

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Stage = StageTransforming

	for i, rec := range state.Records {
		n := i + 1
		row, issues := s.Transformer.Transform(rec, state.Entity, "")
		for _, issue := range issues {
			state.Warnings.Add(fmt.Sprintf("record %d: %s", n, issue))
		}
		if !s.Transformer.Usable(row) {
			state.RowsSkipped++
			state.Warnings.Add(fmt.Sprintf("record %d: skipped, no key column has a value", n))
			continue
		}
		state.Rows = append(state.Rows, row)
		state.RecordNumbers = append(state.RecordNumbers, n)
	}

	if len(state.Rows) == 0 {
		return &ValidationError{
			Code:    CodeNoUsableRows,
			Message: fmt.Sprintf("none of the %d records has a value in a key column", len(state.Records)),
		}
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("rows", len(state.Rows)).
		Int("skipped", state.RowsSkipped).
		Int("warnings", state.Warnings.Len()).
		Msg("Transformed records")
	return nil
}

// Step 4: AllocateBatchStep assigns the batch ID and stamps it on every row.
type AllocateBatchStep struct {
	NewBatchID func() string
}

func (s *AllocateBatchStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Stage = StagePersisting
	state.BatchID = s.NewBatchID()
	state.Status = domain.BatchProcessing
	for _, row := range state.Rows {
		row.UploadBatchID = state.BatchID
	}
	return nil
}

// Step 5: CreateBatchStep archives the payload, flags re-uploads and writes
// the processing batch record.
type CreateBatchStep struct {
	History  HistoryStore
	Archiver Archiver
	Now      func() time.Time
}

func (s *CreateBatchStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	req := state.Request

	if s.Archiver != nil {
		object := path.Join("uploads", string(state.Entity), state.BatchID, archiveName(req.FileName))
		uri, err := s.Archiver.UploadBytes(ctx, object, req.ContentType, req.Data)
		if err != nil {
			log.Warn().Err(err).Str("object", object).Msg("Archiving upload failed")
			state.Warnings.Add("the original file could not be archived")
		} else {
			state.SourceURI = uri
		}
	}

	prev, err := s.History.FindCompletedBatchByChecksum(ctx, state.Entity, state.Checksum)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Duplicate upload check failed")
	case prev != nil:
		state.Warnings.Add(fmt.Sprintf("duplicate upload: this file was already ingested as batch %s on %s",
			prev.BatchID, prev.CreatedAt.UTC().Format(time.DateOnly)))
	}

	batch := &domain.UploadBatch{
		BatchID:     state.BatchID,
		Entity:      state.Entity,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Checksum:    state.Checksum,
		SourceURI:   state.SourceURI,
		RowsTotal:   len(state.Rows),
		Status:      domain.BatchProcessing,
		CreatedAt:   s.Now().UTC(),
	}
	if err := s.History.CreateBatch(ctx, batch); err != nil {
		return NewPersistenceError("create upload batch", err)
	}
	state.BatchCreated = true
	return nil
}

func archiveName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

// Step 6: InsertRowsStep writes rows in sequential chunks.
type InsertRowsStep struct {
	Sales     SalesStore
	ChunkSize int
	Policy    ChunkFailurePolicy
	Progress  ProgressFunc
}

func (s *InsertRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	total := len(state.Rows)

	for start := 0; start < total; start += s.ChunkSize {
		end := min(start+s.ChunkSize, total)
		chunk := state.Rows[start:end]
		n := start/s.ChunkSize + 1

		err := s.Sales.InsertSalesRows(ctx, chunk)
		if err == nil {
			state.RowsInserted += len(chunk)
			s.report(state)
			continue
		}

		log.Warn().Err(err).
			Int("chunk", n).
			Int("first_row", start+1).
			Int("rows", len(chunk)).
			Msg("Chunk insert failed")

		if s.Policy == PolicyAbort || ctx.Err() != nil {
			return NewPersistenceError(fmt.Sprintf("insert chunk %d (rows %d-%d)", n, start+1, end), err)
		}

		state.lastInsertErr = err
		for i, row := range chunk {
			if err := s.Sales.InsertSalesRows(ctx, []*domain.CanonicalRow{row}); err != nil {
				state.RowsFailed++
				state.lastInsertErr = err
				state.RowErrors.Add(fmt.Sprintf("record %d: %v", state.RecordNumbers[start+i], err))
				continue
			}
			state.RowsInserted++
		}
		s.report(state)
	}

	if state.RowsInserted == 0 {
		return NewPersistenceError("insert sales rows",
			fmt.Errorf("none of %d rows could be inserted: %w", total, state.lastInsertErr))
	}
	return nil
}

func (s *InsertRowsStep) report(state *PipelineState) {
	if s.Progress != nil {
		s.Progress(state.BatchID, state.RowsInserted, len(state.Rows))
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d not started: %w", i+1, &UnexpectedError{Err: err})
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

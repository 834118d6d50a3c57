package pipeline

import (
	"fmt"

	"github.com/dvloznov/sales-tracker/internal/domain"
)

// UploadRequest is one spreadsheet submitted for ingestion. Entity is the
// raw form value; it is validated before anything else happens.
type UploadRequest struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
	Entity      string
}

// IngestResult summarizes a finished ingestion. It is returned alongside
// an error whenever the batch record was written, so callers can report its
// ID.
type IngestResult struct {
	BatchID      string             `json:"batchId"`
	Entity       domain.Entity      `json:"entity"`
	FileName     string             `json:"fileName"`
	Status       domain.BatchStatus `json:"status"`
	RowsTotal    int                `json:"rowsTotal"`
	RowsInserted int                `json:"rowsInserted"`
	RowsSkipped  int                `json:"rowsSkipped"`
	Warnings     []string           `json:"warnings"`
	RowErrors    []string           `json:"rowErrors,omitempty"`
	Checksum     string             `json:"checksum,omitempty"`
	SourceURI    string             `json:"sourceUri,omitempty"`
}

// FieldIssue records a raw cell that could not be coerced to its column's
// kind. The field is stored as null.
type FieldIssue struct {
	Header string
	Field  string
	Kind   domain.FieldKind
	Raw    string
}

func (i FieldIssue) String() string {
	return fmt.Sprintf("column %q: cannot read %q as %s", i.Header, i.Raw, i.Kind)
}

// ChunkFailurePolicy decides what happens when a chunk insert fails.
type ChunkFailurePolicy string

const (
	// PolicyRowFallback retries a failed chunk one row at a time.
	PolicyRowFallback ChunkFailurePolicy = "row_fallback"
	// PolicyAbort fails the batch on the first failed chunk.
	PolicyAbort ChunkFailurePolicy = "abort"
)

// ParseChunkFailurePolicy accepts the configured policy name.
func ParseChunkFailurePolicy(s string) (ChunkFailurePolicy, error) {
	switch p := ChunkFailurePolicy(s); p {
	case PolicyRowFallback, PolicyAbort:
		return p, nil
	case "":
		return PolicyRowFallback, nil
	default:
		return "", fmt.Errorf("unknown chunk failure policy %q", s)
	}
}

// Stage is the orchestrator state a request has reached.
type Stage string

const (
	StageValidating   Stage = "validating"
	StageParsing      Stage = "parsing"
	StageTransforming Stage = "transforming"
	StagePersisting   Stage = "persisting"
	StageFinalized    Stage = "finalized"
)

// ProgressFunc observes inserted row counts after each chunk.
type ProgressFunc func(batchID string, rowsInserted, rowsTotal int)

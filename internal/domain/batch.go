package domain

import "time"

// BatchStatus is the lifecycle state of an upload batch.
type BatchStatus string

const (
	// BatchProcessing is set before the first row insert is attempted.
	BatchProcessing BatchStatus = "processing"
	// BatchCompleted means every usable row was inserted.
	BatchCompleted BatchStatus = "completed"
	// BatchPartial means some rows were inserted and some failed.
	BatchPartial BatchStatus = "partial"
	// BatchFailed means no rows were inserted, or the batch was aborted.
	BatchFailed BatchStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchPartial || s == BatchFailed
}

// UploadBatch is the audit record of one ingestion attempt.
type UploadBatch struct {
	BatchID      string      `json:"batchId"`
	Entity       Entity      `json:"entity"`
	FileName     string      `json:"fileName"`
	ContentType  string      `json:"contentType,omitempty"`
	Checksum     string      `json:"checksum,omitempty"`
	SourceURI    string      `json:"sourceUri,omitempty"`
	RowsTotal    int         `json:"rowsTotal"`
	RowsInserted int         `json:"rowsInserted"`
	Status       BatchStatus `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	FinishedAt   *time.Time  `json:"finishedAt,omitempty"`
}

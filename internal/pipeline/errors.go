package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/sales-tracker/internal/spreadsheet"
	"github.com/dvloznov/sales-tracker/internal/store"
)

// Validation and parse error codes, as reported to API clients.
const (
	CodeMissingFile         = "missing_file"
	CodeMissingEntity       = "missing_entity"
	CodeInvalidEntity       = "invalid_entity"
	CodeFileTooLarge        = "file_too_large"
	CodeUnsupportedFileType = "unsupported_file_type"
	CodeNoUsableRows        = "no_usable_rows"
	CodeInvalidSpreadsheet  = "invalid_spreadsheet"
	CodeEmptySheet          = "empty_sheet"
	CodePersistenceFailed   = "persistence_failed"
	CodeUnexpected          = "unexpected_error"
)

// ValidationError rejects a request before any batch exists.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

// ParseError means the upload is not a readable workbook.
type ParseError struct {
	Code string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed (%s): %v", e.Code, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. Hint names a remediation when
// one is known.
type PersistenceError struct {
	Op   string
	Err  error
	Hint string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnexpectedError wraps anything else, including recovered panics.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

func newParseError(err error) *ParseError {
	code := CodeInvalidSpreadsheet
	if errors.Is(err, spreadsheet.ErrEmptySheet) {
		code = CodeEmptySheet
	}
	return &ParseError{Code: code, Err: err}
}

// NewPersistenceError wraps a store failure and attaches the remediation
// hint for a missing schema.
func NewPersistenceError(op string, err error) *PersistenceError {
	pe := &PersistenceError{Op: op, Err: err}
	if errors.Is(err, store.ErrSchemaMissing) {
		pe.Hint = "the sales schema is missing; run cmd/migrate against this backend"
	}
	return pe
}

// ErrorCode classifies err for clients. The second result reports whether
// the caller is at fault.
func ErrorCode(err error) (string, bool) {
	var (
		ve *ValidationError
		pe *ParseError
		se *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Code, true
	case errors.As(err, &pe):
		return pe.Code, true
	case errors.As(err, &se):
		return CodePersistenceFailed, false
	default:
		return CodeUnexpected, false
	}
}

// Describe returns the client-facing message and remediation hint for err.
func Describe(err error) (message, hint string) {
	var (
		ve *ValidationError
		pe *ParseError
		se *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message, ""
	case errors.As(err, &pe):
		if pe.Code == CodeEmptySheet {
			return "the first sheet has no header or data rows", ""
		}
		return "the file could not be read as a spreadsheet", ""
	case errors.As(err, &se):
		return se.Error(), se.Hint
	default:
		return "an unexpected error occurred", ""
	}
}

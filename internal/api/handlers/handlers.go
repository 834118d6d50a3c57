package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/api/middleware"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/rs/zerolog"
)

const (
	// multipartOverhead is allowed on top of the file size limit for the
	// form boundaries and the entity field.
	multipartOverhead = 1 << 20
	// maxMemory keeps small uploads in memory while parsing the form.
	maxMemory = 32 << 20

	codeInvalidQuery = "invalid_query"
)

// Ingester runs the ingestion pipeline. It is satisfied by *pipeline.Ingestor.
type Ingester interface {
	Ingest(ctx context.Context, req *pipeline.UploadRequest) (*pipeline.IngestResult, error)
	MaxUploadBytes() int64
}

// UploadsHandler handles upload and history endpoints.
type UploadsHandler struct {
	ingester   Ingester
	history    store.HistoryRepository
	production bool
	log        zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler. In production, error
// responses omit the error chain.
func NewUploadsHandler(ingester Ingester, history store.HistoryRepository, production bool, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{
		ingester:   ingester,
		history:    history,
		production: production,
		log:        log,
	}
}

// Upload handles POST /api/uploads
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	maxBytes := h.ingester.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
				Error:   pipeline.CodeFileTooLarge,
				Message: "file exceeds the " + formatBytes(maxBytes) + " upload limit",
			})
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
			Error:   pipeline.CodeMissingFile,
			Message: "expected a multipart/form-data body with a file field",
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := &pipeline.UploadRequest{Entity: r.FormValue("entity")}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Validation reports the missing file.
	case err != nil:
		log.Error().Err(err).Msg("Failed to open uploaded file")
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
			Error:   pipeline.CodeMissingFile,
			Message: "the uploaded file could not be read",
		})
		return
	default:
		defer file.Close()
		req.FileName = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Size = header.Size

		req.Data, err = io.ReadAll(file)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read uploaded file")
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
				Error:   pipeline.CodeMissingFile,
				Message: "the uploaded file could not be read",
			})
			return
		}
	}

	result, err := h.ingester.Ingest(ctx, req)
	if err != nil {
		batchID := ""
		if result != nil {
			batchID = result.BatchID
		}
		h.writePipelineError(w, err, batchID)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// History handles GET /api/uploads/history
func (h *UploadsHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var filter store.HistoryFilter
	if raw := strings.TrimSpace(query.Get("entity")); raw != "" && !strings.EqualFold(raw, "all") {
		entity, err := domain.ParseEntity(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
				Error:   pipeline.CodeInvalidEntity,
				Message: err.Error(),
			})
			return
		}
		filter.Entity = entity
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
				Error:   codeInvalidQuery,
				Message: "limit must be an integer",
			})
			return
		}
		filter.Limit = limit
	}

	batches, err := h.history.ListBatches(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list upload history")
		h.writePipelineError(w, pipeline.NewPersistenceError("list upload history", err), "")
		return
	}

	if batches == nil {
		batches = []*domain.UploadBatch{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

func (h *UploadsHandler) writePipelineError(w http.ResponseWriter, err error, batchID string) {
	writePipelineError(w, err, batchID, h.production)
}

// writePipelineError maps the pipeline error taxonomy onto an HTTP reply.
func writePipelineError(w http.ResponseWriter, err error, batchID string, production bool) {
	code, clientFault := pipeline.ErrorCode(err)
	message, hint := pipeline.Describe(err)

	status := http.StatusInternalServerError
	if clientFault {
		status = http.StatusBadRequest
	}

	body := middleware.ErrorResponse{
		Error:   code,
		Message: message,
		Hint:    hint,
		BatchID: batchID,
	}
	if !production {
		body.Detail = err.Error()
	}
	middleware.WriteError(w, status, body)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func formatBytes(n int64) string {
	const mib = 1 << 20
	if n%mib == 0 {
		return strconv.FormatInt(n/mib, 10) + " MiB"
	}
	return strconv.FormatInt(n, 10) + " byte"
}

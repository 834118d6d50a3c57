package handlers

import (
	"errors"
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

// AggregationsHandler serves dashboard summaries.
type AggregationsHandler struct {
	repo       store.AggregationRepository
	production bool
	log        zerolog.Logger
}

// NewAggregationsHandler creates a new aggregations handler.
func NewAggregationsHandler(repo store.AggregationRepository, production bool, log zerolog.Logger) *AggregationsHandler {
	return &AggregationsHandler{
		repo:       repo,
		production: production,
		log:        log,
	}
}

// Summary handles GET /api/aggregations/summary
func (h *AggregationsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := parseAggregationQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorResponse{
			Error:   codeInvalidQuery,
			Message: err.Error(),
		})
		return
	}

	rows, err := h.repo.Summarize(ctx, q)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Int("year", q.Year).Msg("Failed to summarize sales")
		writePipelineError(w, pipeline.NewPersistenceError("summarize sales", err), "", h.production)
		return
	}

	if rows == nil {
		rows = []domain.SummaryRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"year":    q.Year,
		"groupBy": q.GroupBy,
		"rows":    rows,
		"count":   len(rows),
	})
}

// parseAggregationQuery reads and normalizes the query string.
func parseAggregationQuery(r *http.Request) (domain.AggregationQuery, error) {
	query := r.URL.Query()
	var q domain.AggregationQuery

	yearStr := strings.TrimSpace(query.Get("year"))
	if yearStr == "" {
		return q, errors.New("year is required")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return q, errors.New("year must be an integer")
	}
	q.Year = year

	q.Entities, err = domain.ParseEntityList(query.Get("entities"))
	if err != nil {
		return q, err
	}

	q.Quarter = query.Get("quarter")
	q.Country = query.Get("country")
	q.GroupBy = domain.GroupBy(strings.ToLower(strings.TrimSpace(query.Get("group_by"))))

	if limitStr := query.Get("limit"); limitStr != "" {
		q.Limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
	}

	return q.Normalize()
}


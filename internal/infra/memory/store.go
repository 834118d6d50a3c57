// Package memory is an in-process implementation of store.Repository.
// It is safe for concurrent use. Data is lost when the process exits; use
// the postgres or bigquery backends for persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/shopspring/decimal"
)

// Store keeps batches and sales rows in memory.
type Store struct {
	mu      sync.RWMutex
	batches map[string]*domain.UploadBatch
	order   []string
	rows    []*domain.CanonicalRow
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		batches: make(map[string]*domain.UploadBatch),
		now:     time.Now,
	}
}

// CreateBatch implements store.HistoryRepository.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.UploadBatch) error {
	if batch.BatchID == "" {
		return fmt.Errorf("CreateBatch: batch ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.BatchID]; exists {
		return fmt.Errorf("CreateBatch: batch %s already exists", batch.BatchID)
	}

	// Store a copy to avoid external modifications
	batchCopy := *batch
	if batchCopy.CreatedAt.IsZero() {
		batchCopy.CreatedAt = s.now().UTC()
	}
	s.batches[batch.BatchID] = &batchCopy
	s.order = append(s.order, batch.BatchID)
	return nil
}

// FinalizeBatch implements store.HistoryRepository.
func (s *Store) FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.batches[batchID]
	if !exists {
		return fmt.Errorf("FinalizeBatch: batch %s: %w", batchID, store.ErrNotFound)
	}

	finished := s.now().UTC()
	batch.Status = status
	batch.RowsInserted = rowsInserted
	batch.ErrorMessage = store.TruncateErrorMessage(errMsg)
	batch.FinishedAt = &finished
	return nil
}

// ListBatches implements store.HistoryRepository.
func (s *Store) ListBatches(ctx context.Context, filter store.HistoryFilter) ([]*domain.UploadBatch, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UploadBatch
	for i := len(s.order) - 1; i >= 0; i-- {
		batch := s.batches[s.order[i]]
		if filter.Entity != "" && batch.Entity != filter.Entity {
			continue
		}
		// Return a copy to avoid external modifications
		batchCopy := *batch
		result = append(result, &batchCopy)
	}

	// Later inserts win ties between equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// FindCompletedBatchByChecksum implements store.HistoryRepository.
func (s *Store) FindCompletedBatchByChecksum(ctx context.Context, entity domain.Entity, checksum string) (*domain.UploadBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		batch := s.batches[s.order[i]]
		if batch.Entity == entity && batch.Checksum == checksum && batch.Status == domain.BatchCompleted {
			batchCopy := *batch
			return &batchCopy, nil
		}
	}
	return nil, nil
}

// GetBatch implements store.HistoryRepository.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*domain.UploadBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batches[batchID]
	if !exists {
		return nil, fmt.Errorf("GetBatch: batch %s: %w", batchID, store.ErrNotFound)
	}
	batchCopy := *batch
	return &batchCopy, nil
}

// InsertSalesRows implements store.SalesRepository.
func (s *Store) InsertSalesRows(ctx context.Context, rows []*domain.CanonicalRow) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("InsertSalesRows: %w", err)
	}
	for i, row := range rows {
		if row.UploadBatchID == "" || !row.Entity.Valid() {
			return fmt.Errorf("InsertSalesRows: row %d: entity and batch ID are required", i+1)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		rowCopy := *row
		s.rows = append(s.rows, &rowCopy)
	}
	return nil
}

// DeleteRowsByBatch implements store.SalesRepository.
func (s *Store) DeleteRowsByBatch(ctx context.Context, batchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	var deleted int64
	for _, row := range s.rows {
		if row.UploadBatchID == batchID {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = nil
	}
	s.rows = kept
	return deleted, nil
}

// Rows returns copies of the rows of one batch in insertion order.
func (s *Store) Rows(batchID string) []*domain.CanonicalRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CanonicalRow
	for _, row := range s.rows {
		if row.UploadBatchID == batchID {
			rowCopy := *row
			out = append(out, &rowCopy)
		}
	}
	return out
}

// Summarize implements store.AggregationRepository.
func (s *Store) Summarize(ctx context.Context, q domain.AggregationQuery) ([]domain.SummaryRow, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[string]*domain.SummaryRow)
	for _, row := range s.rows {
		if !matches(row, q) {
			continue
		}
		key := groupKey(row, q.GroupBy)
		g, ok := groups[key]
		if !ok {
			g = &domain.SummaryRow{Key: key}
			groups[key] = g
		}
		g.Rows++
		g.Quantity = g.Quantity.Add(orZero(row.Quantity))
		g.NetAmount = g.NetAmount.Add(orZero(row.NetAmount))
		g.TotalAmount = g.TotalAmount.Add(orZero(row.TotalAmount))
	}

	out := make([]domain.SummaryRow, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !q.GroupBy.OrdersByKey() {
			if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
				return c > 0
			}
		}
		return out[i].Key < out[j].Key
	})

	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Close implements store.Repository.
func (s *Store) Close() error { return nil }

func matches(row *domain.CanonicalRow, q domain.AggregationQuery) bool {
	if !row.Year.Valid || row.Year.Int64 != int64(q.Year) {
		return false
	}
	if len(q.Entities) > 0 {
		found := false
		for _, e := range q.Entities {
			if row.Entity == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Quarter != "" && row.Quarter.StringVal != q.Quarter {
		return false
	}
	if q.Country != "" && !strings.EqualFold(row.Country.StringVal, q.Country) {
		return false
	}
	return true
}

func groupKey(row *domain.CanonicalRow, g domain.GroupBy) string {
	switch g {
	case domain.GroupByCountry:
		if row.Country.Valid {
			return row.Country.StringVal
		}
	case domain.GroupByEntity:
		return string(row.Entity)
	case domain.GroupByYear:
		return strconv.FormatInt(row.Year.Int64, 10)
	default:
		if row.Quarter.Valid {
			return row.Quarter.StringVal
		}
	}
	return domain.UnknownKey
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// Ensure Store implements the Repository interface.
var _ store.Repository = (*Store)(nil)

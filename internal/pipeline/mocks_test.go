package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) CreateBatch(ctx context.Context, batch *domain.UploadBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockHistoryStore) FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus, rowsInserted int, errMsg string) error {
	args := m.Called(ctx, batchID, status, rowsInserted, errMsg)
	return args.Error(0)
}

func (m *MockHistoryStore) GetBatch(ctx context.Context, batchID string) (*domain.UploadBatch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UploadBatch), args.Error(1)
}

func (m *MockHistoryStore) ListBatches(ctx context.Context, filter store.HistoryFilter) ([]*domain.UploadBatch, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UploadBatch), args.Error(1)
}

func (m *MockHistoryStore) FindCompletedBatchByChecksum(ctx context.Context, entity domain.Entity, checksum string) (*domain.UploadBatch, error) {
	args := m.Called(ctx, entity, checksum)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UploadBatch), args.Error(1)
}

// recordingSales records every InsertSalesRows call. fail decides, per
// call, whether the insert is rejected.
type recordingSales struct {
	mu     sync.Mutex
	calls  [][]*domain.CanonicalRow
	fail   func(call int, rows []*domain.CanonicalRow) error
	onCall func(call int)
}

func (s *recordingSales) InsertSalesRows(ctx context.Context, rows []*domain.CanonicalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.calls) + 1
	s.calls = append(s.calls, rows)
	if s.onCall != nil {
		s.onCall(call)
	}
	if s.fail != nil {
		return s.fail(call, rows)
	}
	return nil
}

func (s *recordingSales) DeleteRowsByBatch(ctx context.Context, batchID string) (int64, error) {
	return 0, nil
}

func (s *recordingSales) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.calls))
	for i, c := range s.calls {
		out[i] = len(c)
	}
	return out
}

// MockArchiver is a function-backed Archiver.
type MockArchiver struct {
	UploadBytesFunc func(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

func (m *MockArchiver) UploadBytes(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if m.UploadBytesFunc != nil {
		return m.UploadBytesFunc(ctx, objectName, contentType, data)
	}
	return "gs://archive/" + objectName, nil
}

// buildWorkbook writes rows to the first sheet of a new workbook.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", ref, v))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// salesSheet returns a header row plus n invoice rows.
func salesSheet(n int) [][]any {
	rows := [][]any{{"Invoice date", "Invoice no", "Customer", "Country", "Quantity", "Net amount"}}
	for i := 0; i < n; i++ {
		rows = append(rows, []any{44927 + i%90, fmt.Sprintf("INV-%05d", i+1), "Acme Ltd", "USA", 2, 100.5})
	}
	return rows
}

func xlsxRequest(t *testing.T, entity string, rows [][]any) *UploadRequest {
	t.Helper()
	data := buildWorkbook(t, rows)
	return &UploadRequest{
		FileName:    "sales.xlsx",
		ContentType: MIMETypeXLSX,
		Size:        int64(len(data)),
		Data:        data,
		Entity:      entity,
	}
}

func fixedIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/shopspring/decimal"
)

func newBatch(id string, entity domain.Entity, created time.Time) *domain.UploadBatch {
	return &domain.UploadBatch{
		BatchID:   id,
		Entity:    entity,
		FileName:  id + ".xlsx",
		Checksum:  "sum-" + id,
		Status:    domain.BatchProcessing,
		CreatedAt: created,
	}
}

func TestStore_BatchLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.CreateBatch(ctx, newBatch("b1", domain.EntityUSA, base)); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := s.CreateBatch(ctx, newBatch("b1", domain.EntityUSA, base)); err == nil {
		t.Error("CreateBatch() duplicate should fail")
	}
	if err := s.CreateBatch(ctx, &domain.UploadBatch{}); err == nil {
		t.Error("CreateBatch() without ID should fail")
	}

	longMsg := strings.Repeat("e", 3000)
	if err := s.FinalizeBatch(ctx, "b1", domain.BatchFailed, 7, longMsg); err != nil {
		t.Fatalf("FinalizeBatch() error = %v", err)
	}

	got, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if got.Status != domain.BatchFailed || got.RowsInserted != 7 {
		t.Errorf("GetBatch() = %+v", got)
	}
	if len(got.ErrorMessage) != store.MaxErrorMessageLen {
		t.Errorf("error message length = %d, want %d", len(got.ErrorMessage), store.MaxErrorMessageLen)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	// Returned batches are copies.
	got.Status = domain.BatchCompleted
	again, _ := s.GetBatch(ctx, "b1")
	if again.Status != domain.BatchFailed {
		t.Error("GetBatch() returned shared state")
	}

	if err := s.FinalizeBatch(ctx, "missing", domain.BatchFailed, 0, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FinalizeBatch(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetBatch(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBatch(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListBatches(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		entity := domain.EntityUSA
		if i%2 == 1 {
			entity = domain.EntityHQ
		}
		if err := s.CreateBatch(ctx, newBatch(fmt.Sprintf("b%02d", i), entity, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListBatches(ctx, store.HistoryFilter{Limit: 100})
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(all) != store.MaxHistoryLimit {
		t.Errorf("ListBatches() len = %d, want %d", len(all), store.MaxHistoryLimit)
	}
	if all[0].BatchID != "b24" {
		t.Errorf("newest first: got %s", all[0].BatchID)
	}

	hq, _ := s.ListBatches(ctx, store.HistoryFilter{Entity: domain.EntityHQ, Limit: 3})
	if len(hq) != 3 {
		t.Fatalf("ListBatches(HQ) len = %d", len(hq))
	}
	for _, b := range hq {
		if b.Entity != domain.EntityHQ {
			t.Errorf("ListBatches(HQ) returned %s", b.Entity)
		}
	}
	if hq[0].BatchID != "b23" || hq[2].BatchID != "b19" {
		t.Errorf("ListBatches(HQ) order = %s..%s", hq[0].BatchID, hq[2].BatchID)
	}
}

func TestStore_FindCompletedBatchByChecksum(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.CreateBatch(ctx, newBatch("b1", domain.EntityUSA, now))
	got, err := s.FindCompletedBatchByChecksum(ctx, domain.EntityUSA, "sum-b1")
	if err != nil || got != nil {
		t.Fatalf("processing batch should not match: %+v, %v", got, err)
	}

	_ = s.FinalizeBatch(ctx, "b1", domain.BatchCompleted, 1, "")
	got, err = s.FindCompletedBatchByChecksum(ctx, domain.EntityUSA, "sum-b1")
	if err != nil || got == nil || got.BatchID != "b1" {
		t.Fatalf("FindCompletedBatchByChecksum() = %+v, %v", got, err)
	}

	got, _ = s.FindCompletedBatchByChecksum(ctx, domain.EntityHQ, "sum-b1")
	if got != nil {
		t.Error("checksum match must be scoped to the entity")
	}
}

func salesRow(batch string, entity domain.Entity, year int64, quarter, country string, total string) *domain.CanonicalRow {
	row := &domain.CanonicalRow{
		Entity:        entity,
		UploadBatchID: batch,
		Year:          bigquery.NullInt64{Int64: year, Valid: true},
		Quarter:       bigquery.NullString{StringVal: quarter, Valid: quarter != ""},
		Country:       bigquery.NullString{StringVal: country, Valid: country != ""},
		Quantity:      decimal.NewNullDecimal(decimal.NewFromInt(1)),
		TotalAmount:   decimal.NewNullDecimal(decimal.RequireFromString(total)),
	}
	return row
}

func TestStore_InsertAndDeleteRows(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rows := []*domain.CanonicalRow{
		salesRow("b1", domain.EntityUSA, 2024, "Q1", "USA", "10"),
		salesRow("b2", domain.EntityUSA, 2024, "Q1", "USA", "20"),
		salesRow("b1", domain.EntityUSA, 2024, "Q2", "USA", "30"),
	}
	if err := s.InsertSalesRows(ctx, rows); err != nil {
		t.Fatalf("InsertSalesRows() error = %v", err)
	}

	// Stored rows are copies.
	rows[0].Country.StringVal = "changed"
	if got := s.Rows("b1"); len(got) != 2 || got[0].Country.StringVal != "USA" {
		t.Errorf("Rows(b1) = %d rows", len(got))
	}

	if err := s.InsertSalesRows(ctx, []*domain.CanonicalRow{{Entity: domain.EntityUSA}}); err == nil {
		t.Error("InsertSalesRows() without batch ID should fail")
	}

	n, err := s.DeleteRowsByBatch(ctx, "b1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteRowsByBatch() = %d, %v", n, err)
	}
	if len(s.Rows("b1")) != 0 || len(s.Rows("b2")) != 1 {
		t.Error("DeleteRowsByBatch() removed the wrong rows")
	}
}

func TestStore_Summarize(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.InsertSalesRows(ctx, []*domain.CanonicalRow{
		salesRow("b1", domain.EntityUSA, 2024, "Q2", "USA", "100"),
		salesRow("b1", domain.EntityUSA, 2024, "Q1", "USA", "50"),
		salesRow("b1", domain.EntityUSA, 2024, "Q1", "Canada", "25.5"),
		salesRow("b2", domain.EntityHQ, 2024, "Q1", "", "400"),
		salesRow("b3", domain.EntityHQ, 2023, "Q4", "USA", "999"),
	})

	byQuarter, err := s.Summarize(ctx, domain.AggregationQuery{Year: 2024})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(byQuarter) != 2 || byQuarter[0].Key != "Q1" || byQuarter[1].Key != "Q2" {
		t.Fatalf("Summarize(quarter) = %+v", byQuarter)
	}
	if byQuarter[0].Rows != 3 || byQuarter[0].TotalAmount.String() != "475.5" {
		t.Errorf("Q1 = %+v", byQuarter[0])
	}

	byCountry, _ := s.Summarize(ctx, domain.AggregationQuery{Year: 2024, GroupBy: domain.GroupByCountry})
	keys := make([]string, len(byCountry))
	for i, r := range byCountry {
		keys[i] = r.Key
	}
	if strings.Join(keys, ",") != "unknown,USA,Canada" {
		t.Errorf("Summarize(country) order = %v", keys)
	}

	usaOnly, _ := s.Summarize(ctx, domain.AggregationQuery{
		Year:     2024,
		Entities: []domain.Entity{domain.EntityUSA},
		Quarter:  "q1",
		Country:  "usa",
		GroupBy:  domain.GroupByEntity,
	})
	if len(usaOnly) != 1 || usaOnly[0].Key != "USA" || usaOnly[0].Rows != 1 {
		t.Errorf("Summarize(filtered) = %+v", usaOnly)
	}

	limited, _ := s.Summarize(ctx, domain.AggregationQuery{Year: 2024, GroupBy: domain.GroupByCountry, Limit: 1})
	if len(limited) != 1 {
		t.Errorf("Summarize(limit 1) len = %d", len(limited))
	}

	if _, err := s.Summarize(ctx, domain.AggregationQuery{}); err == nil {
		t.Error("Summarize() without year should fail")
	}
}

func TestStore_ConcurrentInserts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.InsertSalesRows(ctx, []*domain.CanonicalRow{salesRow("b1", domain.EntityUSA, 2024, "Q1", "USA", "1")})
			}
		}()
	}
	wg.Wait()

	if got := len(s.Rows("b1")); got != 400 {
		t.Errorf("rows = %d, want 400", got)
	}
}

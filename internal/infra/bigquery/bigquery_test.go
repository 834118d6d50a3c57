package bigquery

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
)

var testDataset = Dataset{ProjectID: "proj", DatasetID: "sales"}

func TestDataset_Table(t *testing.T) {
	if got := testDataset.Table("upload_batches"); got != "`proj.sales.upload_batches`" {
		t.Errorf("Table() = %s", got)
	}
}

func TestUploadBatchRow_ToDomain(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(time.Minute)

	row := UploadBatchRow{
		BatchID:      "b1",
		Entity:       "USA",
		FileName:     "q1.xlsx",
		Checksum:     bigquery.NullString{StringVal: "abc", Valid: true},
		RowsTotal:    10,
		RowsInserted: 9,
		Status:       "partial",
		ErrorMessage: bigquery.NullString{StringVal: "1 of 10 rows failed to insert", Valid: true},
		CreatedAt:    created,
		FinishedAt:   bigquery.NullTimestamp{Timestamp: finished, Valid: true},
	}

	got := row.toDomain()
	if got.Entity != domain.EntityUSA || got.Status != domain.BatchPartial {
		t.Errorf("toDomain() = %+v", got)
	}
	if got.RowsTotal != 10 || got.RowsInserted != 9 || got.Checksum != "abc" {
		t.Errorf("toDomain() counters = %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("toDomain() FinishedAt = %v", got.FinishedAt)
	}

	row.FinishedAt = bigquery.NullTimestamp{}
	if row.toDomain().FinishedAt != nil {
		t.Error("null finished_at should map to nil")
	}
}

func TestSalesRowSaver_Save(t *testing.T) {
	row := &domain.CanonicalRow{
		Entity:        domain.EntityBWA,
		UploadBatchID: "b1",
		Year:          bigquery.NullInt64{Int64: 2024, Valid: true},
		Quarter:       bigquery.NullString{StringVal: "Q4", Valid: true},
		InvoiceDate:   bigquery.NullDate{Date: civil.Date{Year: 2024, Month: 12, Day: 31}, Valid: true},
		NetAmount:     decimal.NewNullDecimal(decimal.RequireFromString("0.1")),
	}

	values, insertID, err := salesRowSaver{row: row}.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if insertID != bigquery.NoDedupeID {
		t.Errorf("insertID = %q", insertID)
	}
	if len(values) != len(domain.ColumnNames()) {
		t.Errorf("Save() returned %d columns", len(values))
	}

	if values["entity"] != "BWA" || values["upload_batch_id"] != "b1" {
		t.Errorf("system columns = %v, %v", values["entity"], values["upload_batch_id"])
	}
	if values["country"] != nil {
		t.Errorf("null text column = %v", values["country"])
	}
	if d, ok := values["invoice_date"].(civil.Date); !ok || d.Day != 31 {
		t.Errorf("invoice_date = %#v", values["invoice_date"])
	}
	rat, ok := values["net_amount"].(*big.Rat)
	if !ok || rat.Cmp(big.NewRat(1, 10)) != 0 {
		t.Errorf("net_amount = %#v", values["net_amount"])
	}
}

func TestBuildSummaryQuery(t *testing.T) {
	q, err := domain.AggregationQuery{
		Year:     2024,
		Entities: []domain.Entity{domain.EntityHQ},
		Country:  "Vietnam",
		GroupBy:  domain.GroupByEntity,
	}.Normalize()
	if err != nil {
		t.Fatal(err)
	}

	sql, params := buildSummaryQuery(testDataset, q)

	for _, want := range []string{
		"entity AS group_key",
		"FROM `proj.sales.sales_records`",
		"entity IN UNNEST(@entities)",
		"LOWER(country) = LOWER(@country)",
		"ORDER BY SUM(IFNULL(total_amount, 0)) DESC, group_key ASC",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query missing %q:\n%s", want, sql)
		}
	}
	if strings.Contains(sql, "@quarter") {
		t.Error("quarter filter should be absent")
	}

	byName := make(map[string]any)
	for _, p := range params {
		byName[p.Name] = p.Value
	}
	if byName["year"] != 2024 || byName["limit"] != domain.DefaultSummaryLimit {
		t.Errorf("params = %v", byName)
	}
	if names, ok := byName["entities"].([]string); !ok || len(names) != 1 || names[0] != "HQ" {
		t.Errorf("entities param = %#v", byName["entities"])
	}
}

func TestBuildSummaryQuery_QuarterGrouping(t *testing.T) {
	q, _ := domain.AggregationQuery{Year: 2024, Quarter: "q3"}.Normalize()

	sql, _ := buildSummaryQuery(testDataset, q)
	if !strings.Contains(sql, "IFNULL(quarter, 'unknown') AS group_key") {
		t.Errorf("group key missing:\n%s", sql)
	}
	if !strings.Contains(sql, "ORDER BY group_key ASC") {
		t.Errorf("quarter grouping should order by key:\n%s", sql)
	}
}

func TestMapError(t *testing.T) {
	notFound := fmt.Errorf("query: %w", &googleapi.Error{Code: http.StatusNotFound, Message: "Not found: Table proj:sales.sales_records"})
	if !errors.Is(mapError(notFound), store.ErrSchemaMissing) {
		t.Error("404 should map to ErrSchemaMissing")
	}

	forbidden := &googleapi.Error{Code: http.StatusForbidden}
	if errors.Is(mapError(forbidden), store.ErrSchemaMissing) {
		t.Error("403 should not map to ErrSchemaMissing")
	}
}

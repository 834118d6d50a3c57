package pipeline_test

import (
	"context"
	"testing"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/infra/memory"
	"github.com/dvloznov/sales-tracker/internal/logger"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Invoice date", "Invoice no", "Customer", "Country", "Net amount", "Total amount"},
		{45292, "INV-1", "Acme", "USA", "1,000.00", 1100},
		{"2024-04-02", "INV-2", "Globex", "Canada", 250, 275},
		{nil, nil, nil, "USA", nil, nil},
	}
	for r, row := range rows {
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef(t, r), &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func cellRef(t *testing.T, row int) string {
	ref, err := excelize.CoordinatesToCellName(1, row+1)
	require.NoError(t, err)
	return ref
}

func TestIngest_AgainstMemoryStore(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	mem := memory.NewStore()
	in := pipeline.NewIngestor(mem, mem, pipeline.Options{})
	data := workbook(t)

	req := &pipeline.UploadRequest{
		FileName:    "q1.xlsx",
		ContentType: pipeline.MIMETypeXLSX,
		Data:        data,
		Entity:      "USA",
	}

	first, err := in.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, first.Status)
	assert.Equal(t, 2, first.RowsInserted)
	assert.Equal(t, 1, first.RowsSkipped)

	rows := mem.Rows(first.BatchID)
	require.Len(t, rows, 2)
	assert.Equal(t, "1000", rows[0].NetAmount.Decimal.String())
	assert.Equal(t, "Q1", rows[0].Quarter.StringVal)
	assert.Equal(t, "Q2", rows[1].Quarter.StringVal)

	second, err := in.Ingest(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.BatchID, second.BatchID)
	assert.Contains(t, second.Warnings[len(second.Warnings)-1], "duplicate upload")

	history, err := mem.ListBatches(ctx, store.HistoryFilter{Entity: domain.EntityUSA})
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, b := range history {
		assert.Equal(t, domain.BatchCompleted, b.Status)
		assert.Equal(t, 2, b.RowsTotal)
		assert.Equal(t, 2, b.RowsInserted)
		assert.Equal(t, first.Checksum, b.Checksum)
	}

	summary, err := mem.Summarize(ctx, domain.AggregationQuery{Year: 2024, GroupBy: domain.GroupByCountry})
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "USA", summary[0].Key)
	assert.Equal(t, "2200", summary[0].TotalAmount.String())
}

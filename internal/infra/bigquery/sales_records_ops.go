package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

// salesRowSaver adapts a CanonicalRow to the streaming inserter.
type salesRowSaver struct {
	row *domain.CanonicalRow
}

// Save implements bigquery.ValueSaver. Numbers are sent as *big.Rat so the
// NUMERIC columns keep their exact value.
func (s salesRowSaver) Save() (map[string]bigquery.Value, string, error) {
	columns := domain.ColumnNames()
	values := s.row.Values()

	out := make(map[string]bigquery.Value, len(columns))
	for i, name := range columns {
		switch v := values[i].(type) {
		case nil:
			out[name] = nil
		case decimal.Decimal:
			out[name] = v.Rat()
		default:
			out[name] = v
		}
	}
	return out, bigquery.NoDedupeID, nil
}

// InsertSalesRows delegates to InsertSalesRowsWithClient with the shared client.
func (r *BigQueryRepository) InsertSalesRows(ctx context.Context, rows []*domain.CanonicalRow) error {
	return InsertSalesRowsWithClient(ctx, r.client, r.ds, rows)
}

// DeleteRowsByBatch delegates to DeleteRowsByBatchWithClient with the shared client.
func (r *BigQueryRepository) DeleteRowsByBatch(ctx context.Context, batchID string) (int64, error) {
	return DeleteRowsByBatchWithClient(ctx, r.client, r.ds, batchID)
}

// Summarize delegates to SummarizeWithClient with the shared client.
func (r *BigQueryRepository) Summarize(ctx context.Context, q domain.AggregationQuery) ([]domain.SummaryRow, error) {
	return SummarizeWithClient(ctx, r.client, r.ds, q)
}

// InsertSalesRowsWithClient streams rows into sales_records in one request.
// Invalid rows are not skipped, so a rejected request inserts nothing.
func InsertSalesRowsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*domain.CanonicalRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]bigquery.ValueSaver, len(rows))
	for i, row := range rows {
		savers[i] = salesRowSaver{row: row}
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(salesRecordsTable).Inserter()
	inserter.SkipInvalidRows = false
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertSalesRows: inserting rows: %w", mapError(err))
	}
	return nil
}

// SummarizeWithClient groups one year of sales.
func SummarizeWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, query domain.AggregationQuery) ([]domain.SummaryRow, error) {
	query, err := query.Normalize()
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}

	sql, params := buildSummaryQuery(ds, query)
	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summarize: query read: %w", mapError(err))
	}

	var out []domain.SummaryRow
	for {
		var row struct {
			GroupKey    string `bigquery:"group_key"`
			Rows        int64  `bigquery:"row_count"`
			Quantity    string `bigquery:"quantity"`
			NetAmount   string `bigquery:"net_amount"`
			TotalAmount string `bigquery:"total_amount"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Summarize: iter next: %w", err)
		}

		sr := domain.SummaryRow{Key: row.GroupKey, Rows: row.Rows}
		if sr.Quantity, err = decimal.NewFromString(row.Quantity); err != nil {
			return nil, fmt.Errorf("Summarize: quantity %q: %w", row.Quantity, err)
		}
		if sr.NetAmount, err = decimal.NewFromString(row.NetAmount); err != nil {
			return nil, fmt.Errorf("Summarize: net amount %q: %w", row.NetAmount, err)
		}
		if sr.TotalAmount, err = decimal.NewFromString(row.TotalAmount); err != nil {
			return nil, fmt.Errorf("Summarize: total amount %q: %w", row.TotalAmount, err)
		}
		out = append(out, sr)
	}
	return out, nil
}

func buildSummaryQuery(ds Dataset, q domain.AggregationQuery) (string, []bigquery.QueryParameter) {
	params := []bigquery.QueryParameter{
		{Name: "year", Value: q.Year},
		{Name: "limit", Value: q.Limit},
	}
	where := []string{"year = @year"}

	if len(q.Entities) > 0 {
		names := make([]string, len(q.Entities))
		for i, e := range q.Entities {
			names[i] = string(e)
		}
		params = append(params, bigquery.QueryParameter{Name: "entities", Value: names})
		where = append(where, "entity IN UNNEST(@entities)")
	}
	if q.Quarter != "" {
		params = append(params, bigquery.QueryParameter{Name: "quarter", Value: q.Quarter})
		where = append(where, "quarter = @quarter")
	}
	if q.Country != "" {
		params = append(params, bigquery.QueryParameter{Name: "country", Value: q.Country})
		where = append(where, "LOWER(country) = LOWER(@country)")
	}

	var key string
	switch q.GroupBy {
	case domain.GroupByEntity:
		key = "entity"
	case domain.GroupByYear:
		key = "CAST(year AS STRING)"
	default:
		key = fmt.Sprintf("IFNULL(%s, '%s')", q.GroupBy.Column(), domain.UnknownKey)
	}

	order := "group_key ASC"
	if !q.GroupBy.OrdersByKey() {
		order = "SUM(IFNULL(total_amount, 0)) DESC, group_key ASC"
	}

	sql := fmt.Sprintf(`
		SELECT
			%s AS group_key,
			COUNT(*) AS row_count,
			CAST(IFNULL(SUM(quantity), 0) AS STRING) AS quantity,
			CAST(IFNULL(SUM(net_amount), 0) AS STRING) AS net_amount,
			CAST(IFNULL(SUM(total_amount), 0) AS STRING) AS total_amount
		FROM %s
		WHERE %s
		GROUP BY group_key
		ORDER BY %s
		LIMIT @limit
	`, key, ds.Table(salesRecordsTable), strings.Join(where, "\n\t\t  AND "), order)

	return sql, params
}

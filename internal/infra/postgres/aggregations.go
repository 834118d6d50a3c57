package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Summarize groups the fact table of one year.
func (s *Store) Summarize(ctx context.Context, q domain.AggregationQuery) ([]domain.SummaryRow, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}

	query, args := buildSummaryQuery(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", mapError(err))
	}
	defer rows.Close()

	var out []domain.SummaryRow
	for rows.Next() {
		var (
			r                     domain.SummaryRow
			quantity, net, total string
		)
		if err := rows.Scan(&r.Key, &r.Rows, &quantity, &net, &total); err != nil {
			return nil, fmt.Errorf("Summarize: scan: %w", err)
		}
		if r.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("Summarize: quantity %q: %w", quantity, err)
		}
		if r.NetAmount, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("Summarize: net amount %q: %w", net, err)
		}
		if r.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("Summarize: total amount %q: %w", total, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Summarize: rows: %w", mapError(err))
	}
	return out, nil
}

// buildSummaryQuery renders a normalized query. Only the group column is
// interpolated, and it comes from a closed set.
func buildSummaryQuery(q domain.AggregationQuery) (string, []any) {
	args := []any{q.Year}
	where := []string{"year = $1"}

	if len(q.Entities) > 0 {
		names := make([]string, len(q.Entities))
		for i, e := range q.Entities {
			names[i] = string(e)
		}
		args = append(args, names)
		where = append(where, fmt.Sprintf("entity = ANY($%d)", len(args)))
	}
	if q.Quarter != "" {
		args = append(args, q.Quarter)
		where = append(where, fmt.Sprintf("quarter = $%d", len(args)))
	}
	if q.Country != "" {
		args = append(args, q.Country)
		where = append(where, fmt.Sprintf("lower(country) = lower($%d)", len(args)))
	}

	var key string
	switch q.GroupBy {
	case domain.GroupByEntity:
		key = "entity"
	case domain.GroupByYear:
		key = "year::text"
	default:
		key = fmt.Sprintf("COALESCE(%s, '%s')", q.GroupBy.Column(), domain.UnknownKey)
	}

	order := "group_key ASC"
	if !q.GroupBy.OrdersByKey() {
		order = "SUM(COALESCE(total_amount, 0)) DESC, group_key ASC"
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
	SELECT %s AS group_key,
		COUNT(*),
		COALESCE(SUM(quantity), 0)::text,
		COALESCE(SUM(net_amount), 0)::text,
		COALESCE(SUM(total_amount), 0)::text
	FROM %s
	WHERE %s
	GROUP BY group_key
	ORDER BY %s
	LIMIT $%d`, key, salesTable, strings.Join(where, " AND "), order, len(args))

	return query, args
}

package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// GroupBy selects the dimension a sales summary is grouped on.
type GroupBy string

const (
	GroupByQuarter GroupBy = "quarter"
	GroupByCountry GroupBy = "country"
	GroupByEntity  GroupBy = "entity"
	GroupByYear    GroupBy = "year"
)

// Column returns the fact-table column backing the grouping.
func (g GroupBy) Column() string {
	switch g {
	case GroupByCountry:
		return "country"
	case GroupByEntity:
		return "entity"
	case GroupByYear:
		return "year"
	default:
		return "quarter"
	}
}

// OrdersByKey reports whether results sort by key rather than by amount.
func (g GroupBy) OrdersByKey() bool {
	return g == GroupByQuarter || g == GroupByYear
}

const (
	DefaultSummaryLimit = 50
	MaxSummaryLimit     = 500

	// UnknownKey labels the group of rows whose grouping column is null.
	UnknownKey = "unknown"
)

// AggregationQuery filters a sales summary. An empty Entities slice means all.
type AggregationQuery struct {
	Year     int
	Entities []Entity
	Quarter  string
	Country  string
	GroupBy  GroupBy
	Limit    int
}

// SummaryRow is one group of a sales summary.
type SummaryRow struct {
	Key         string          `json:"key"`
	Rows        int64           `json:"rows"`
	Quantity    decimal.Decimal `json:"quantity"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// ParseEntityList accepts a comma-joined list or the literal "All".
func ParseEntityList(s string) ([]Entity, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return nil, nil
	}

	var out []Entity
	for _, part := range strings.Split(s, ",") {
		e, err := ParseEntity(part)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Normalize applies defaults and bounds, and rejects malformed filters.
func (q AggregationQuery) Normalize() (AggregationQuery, error) {
	if q.Year < 1 || q.Year > 9999 {
		return q, fmt.Errorf("year is required")
	}
	switch q.GroupBy {
	case "":
		q.GroupBy = GroupByQuarter
	case GroupByQuarter, GroupByCountry, GroupByEntity, GroupByYear:
	default:
		return q, fmt.Errorf("unsupported group_by %q", q.GroupBy)
	}
	if q.Quarter != "" {
		q.Quarter = strings.ToUpper(strings.TrimSpace(q.Quarter))
		switch q.Quarter {
		case "Q1", "Q2", "Q3", "Q4":
		default:
			return q, fmt.Errorf("invalid quarter %q", q.Quarter)
		}
	}
	q.Country = strings.TrimSpace(q.Country)
	if q.Limit <= 0 {
		q.Limit = DefaultSummaryLimit
	}
	if q.Limit > MaxSummaryLimit {
		q.Limit = MaxSummaryLimit
	}
	return q, nil
}

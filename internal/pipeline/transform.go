package pipeline

import (
	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/sales-tracker/internal/cell"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/mapping"
	"github.com/dvloznov/sales-tracker/internal/spreadsheet"
	"github.com/shopspring/decimal"
)

// periodSources are the date fields year and quarter are derived from, in
// order of preference.
var periodSources = []string{"invoice_date", "date"}

// Transformer maps raw sheet records onto CanonicalRow.
type Transformer struct {
	columns []mapping.Column
	keys    []domain.Field
	period  []mapping.Column
}

// NewTransformer builds a transformer over a mapping table. A nil table
// means mapping.Default().
func NewTransformer(table *mapping.Table) *Transformer {
	if table == nil {
		table = mapping.Default()
	}

	t := &Transformer{columns: table.Columns()}
	for _, c := range table.KeyColumns() {
		t.keys = append(t.keys, c.Target())
	}
	for _, name := range periodSources {
		if c, ok := table.ByField(name); ok {
			t.period = append(t.period, c)
		}
	}
	return t
}

var defaultTransformer = NewTransformer(nil)

// Transform applies the default mapping table to one record.
func Transform(raw spreadsheet.RawRecord, entity domain.Entity, batchID string) (*domain.CanonicalRow, []FieldIssue) {
	return defaultTransformer.Transform(raw, entity, batchID)
}

// Transform builds the canonical row for one record. Cells that fail to
// coerce are stored as null and reported as issues. The result depends only
// on its arguments.
func (t *Transformer) Transform(raw spreadsheet.RawRecord, entity domain.Entity, batchID string) (*domain.CanonicalRow, []FieldIssue) {
	row := &domain.CanonicalRow{Entity: entity, UploadBatchID: batchID}
	folded := foldHeaders(raw)

	var issues []FieldIssue
	for _, c := range t.columns {
		header, v, ok := resolve(raw, folded, c.Header)
		if !ok || v.IsEmpty() {
			continue
		}

		f := c.Target()
		var err error
		switch c.Kind {
		case domain.KindDate:
			var d bigquery.NullDate
			d, err = cell.CoerceDate(v)
			row.SetDate(f, d)
		case domain.KindNumber:
			var n decimal.NullDecimal
			n, err = cell.CoerceNumber(v)
			row.SetNumber(f, n)
		case domain.KindText:
			row.SetText(f, cell.CoerceText(v))
		}
		if err != nil {
			issues = append(issues, FieldIssue{Header: header, Field: c.Field, Kind: c.Kind, Raw: v.String()})
		}
	}

	// The first period column with a non-empty cell decides year and
	// quarter; if that cell is not a date both stay null.
	for _, c := range t.period {
		if _, v, ok := resolve(raw, folded, c.Header); !ok || v.IsEmpty() {
			continue
		}
		if d := row.GetDate(c.Target()); d.Valid {
			year, quarter := cell.YearQuarter(d.Date)
			row.Year.Int64, row.Year.Valid = int64(year), true
			row.Quarter.StringVal, row.Quarter.Valid = quarter, true
		}
		break
	}

	return row, issues
}

// Usable reports whether at least one key column holds a value.
func (t *Transformer) Usable(row *domain.CanonicalRow) bool {
	for _, f := range t.keys {
		if !row.IsNull(f) {
			return true
		}
	}
	return false
}

// foldHeaders maps each trimmed, lower-cased header to the header as
// authored. When two headers fold alike the lexically smaller wins, so the
// choice does not depend on map order.
func foldHeaders(raw spreadsheet.RawRecord) map[string]string {
	folded := make(map[string]string, len(raw))
	for h := range raw {
		k := mapping.NormalizeHeader(h)
		if prev, ok := folded[k]; !ok || h < prev {
			folded[k] = h
		}
	}
	return folded
}

// resolve looks up a mapped header in a record, exact match first.
func resolve(raw spreadsheet.RawRecord, folded map[string]string, header string) (string, cell.Value, bool) {
	if v, ok := raw[header]; ok {
		return header, v, true
	}
	if h, ok := folded[mapping.NormalizeHeader(header)]; ok {
		return h, raw[h], true
	}
	return "", cell.Value{}, false
}

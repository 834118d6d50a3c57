// Package mapping holds the spreadsheet header to canonical field table.
//
// The table is data: it lives in columns.yaml, embedded at build time, and
// alternative tables can be loaded with Load. Every entry is validated
// against domain.CanonicalRow once, at load time.
package mapping

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var defaultColumns []byte

var defaultTable = MustParse(defaultColumns)

// Column is one (header, field, kind) entry of the table.
type Column struct {
	Header string           `yaml:"header"`
	Field  string           `yaml:"field"`
	Kind   domain.FieldKind `yaml:"kind"`
	// Key marks columns that identify a row as usable.
	Key bool `yaml:"key"`

	target domain.Field
}

// Target returns the CanonicalRow field the column writes to.
func (c Column) Target() domain.Field { return c.target }

// Table is a validated, immutable column mapping.
type Table struct {
	columns  []Column
	byHeader map[string]int
	byFolded map[string]int
	byField  map[string]int
}

type tableFile struct {
	Columns []Column `yaml:"columns"`
}

// Default returns the embedded table.
func Default() *Table { return defaultTable }

// MustParse is Parse that panics on error.
func MustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("mapping: %v", err))
	}
	return t
}

// Load reads and validates a YAML table.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Load: reading table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("Parse: decoding yaml: %w", err)
	}
	if len(f.Columns) == 0 {
		return nil, fmt.Errorf("Parse: table has no columns")
	}

	t := &Table{
		columns:  make([]Column, 0, len(f.Columns)),
		byHeader: make(map[string]int, len(f.Columns)),
		byFolded: make(map[string]int, len(f.Columns)),
		byField:  make(map[string]int, len(f.Columns)),
	}

	hasKey := false
	for i, c := range f.Columns {
		c.Header = strings.TrimSpace(c.Header)
		if c.Header == "" || c.Field == "" {
			return nil, fmt.Errorf("Parse: column %d: header and field are required", i+1)
		}

		target, ok := domain.LookupField(c.Field)
		if !ok {
			return nil, fmt.Errorf("Parse: column %q: unknown field %q", c.Header, c.Field)
		}
		switch c.Kind {
		case domain.KindDate, domain.KindNumber, domain.KindText:
		default:
			return nil, fmt.Errorf("Parse: column %q: unknown kind %q", c.Header, c.Kind)
		}
		if c.Kind != target.Kind {
			return nil, fmt.Errorf("Parse: column %q: kind %s does not match field %s (%s)", c.Header, c.Kind, c.Field, target.Kind)
		}

		folded := NormalizeHeader(c.Header)
		if _, dup := t.byFolded[folded]; dup {
			return nil, fmt.Errorf("Parse: duplicate header %q", c.Header)
		}
		if _, dup := t.byField[c.Field]; dup {
			return nil, fmt.Errorf("Parse: duplicate field %q", c.Field)
		}

		c.target = target
		hasKey = hasKey || c.Key
		t.byHeader[c.Header] = len(t.columns)
		t.byFolded[folded] = len(t.columns)
		t.byField[c.Field] = len(t.columns)
		t.columns = append(t.columns, c)
	}

	if !hasKey {
		return nil, fmt.Errorf("Parse: at least one key column is required")
	}
	return t, nil
}

// NormalizeHeader folds a header for case-insensitive matching.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Columns returns the table in file order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of mapped columns.
func (t *Table) Len() int { return len(t.columns) }

// ByHeader resolves a spreadsheet header, exact match first.
func (t *Table) ByHeader(header string) (Column, bool) {
	if i, ok := t.byHeader[header]; ok {
		return t.columns[i], true
	}
	if i, ok := t.byFolded[NormalizeHeader(header)]; ok {
		return t.columns[i], true
	}
	return Column{}, false
}

// ByField resolves a canonical field name.
func (t *Table) ByField(field string) (Column, bool) {
	i, ok := t.byField[field]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// KeyColumns returns the columns that make a row usable.
func (t *Table) KeyColumns() []Column {
	var out []Column
	for _, c := range t.columns {
		if c.Key {
			out = append(out, c)
		}
	}
	return out
}

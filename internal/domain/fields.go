package domain

import (
	"fmt"
	"reflect"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
)

// FieldKind is the storage type of a mapped column.
type FieldKind string

const (
	KindDate   FieldKind = "date"
	KindNumber FieldKind = "number"
	KindText   FieldKind = "text"
)

// Field describes one mapped column of CanonicalRow.
type Field struct {
	Name  string
	Kind  FieldKind
	index []int
}

var (
	nullDateType    = reflect.TypeOf(bigquery.NullDate{})
	nullDecimalType = reflect.TypeOf(decimal.NullDecimal{})
	nullStringType  = reflect.TypeOf(bigquery.NullString{})
)

// systemColumns are stamped by the pipeline rather than read from a sheet.
var systemColumns = []string{"entity", "year", "quarter", "upload_batch_id"}

var (
	columnNames  []string
	mappedFields []Field
	fieldsByName map[string]Field
)

func init() {
	t := reflect.TypeOf(CanonicalRow{})
	fieldsByName = make(map[string]Field, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name := sf.Tag.Get("db")
		if name == "" {
			continue
		}
		columnNames = append(columnNames, name)

		var kind FieldKind
		switch sf.Type {
		case nullDateType:
			kind = KindDate
		case nullDecimalType:
			kind = KindNumber
		case nullStringType:
			kind = KindText
		default:
			continue
		}
		if isSystemColumn(name) {
			continue
		}
		f := Field{Name: name, Kind: kind, index: sf.Index}
		mappedFields = append(mappedFields, f)
		fieldsByName[name] = f
	}
}

func isSystemColumn(name string) bool {
	for _, c := range systemColumns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnNames returns every fact-table column in struct order.
func ColumnNames() []string {
	out := make([]string, len(columnNames))
	copy(out, columnNames)
	return out
}

// MappedFields returns the columns that can be populated from a spreadsheet.
func MappedFields() []Field {
	out := make([]Field, len(mappedFields))
	copy(out, mappedFields)
	return out
}

// LookupField finds a mapped column by its canonical name.
func LookupField(name string) (Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}

func (r *CanonicalRow) field(f Field) reflect.Value {
	return reflect.ValueOf(r).Elem().FieldByIndex(f.index)
}

// SetDate assigns a date column.
func (r *CanonicalRow) SetDate(f Field, v bigquery.NullDate) {
	r.mustKind(f, KindDate)
	r.field(f).Set(reflect.ValueOf(v))
}

// SetNumber assigns a numeric column.
func (r *CanonicalRow) SetNumber(f Field, v decimal.NullDecimal) {
	r.mustKind(f, KindNumber)
	r.field(f).Set(reflect.ValueOf(v))
}

// SetText assigns a text column.
func (r *CanonicalRow) SetText(f Field, v bigquery.NullString) {
	r.mustKind(f, KindText)
	r.field(f).Set(reflect.ValueOf(v))
}

func (r *CanonicalRow) mustKind(f Field, want FieldKind) {
	if f.Kind != want || f.index == nil {
		panic(fmt.Sprintf("domain: field %q is %s, not %s", f.Name, f.Kind, want))
	}
}

// GetDate reads a date column.
func (r *CanonicalRow) GetDate(f Field) bigquery.NullDate {
	r.mustKind(f, KindDate)
	return r.field(f).Interface().(bigquery.NullDate)
}

// IsNull reports whether a mapped column holds no value.
func (r *CanonicalRow) IsNull(f Field) bool {
	switch v := r.field(f).Interface().(type) {
	case bigquery.NullDate:
		return !v.Valid
	case decimal.NullDecimal:
		return !v.Valid
	case bigquery.NullString:
		return !v.Valid
	}
	return true
}

// Values returns the row in ColumnNames order. Nulls are nil; dates are
// civil.Date, numbers decimal.Decimal, text string and year int64.
func (r *CanonicalRow) Values() []any {
	rv := reflect.ValueOf(r).Elem()
	out := make([]any, 0, len(columnNames))

	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).Tag.Get("db") == "" {
			continue
		}
		switch v := rv.Field(i).Interface().(type) {
		case Entity:
			out = append(out, string(v))
		case string:
			out = append(out, v)
		case bigquery.NullInt64:
			out = append(out, nullable(v.Valid, v.Int64))
		case bigquery.NullString:
			out = append(out, nullable(v.Valid, v.StringVal))
		case bigquery.NullDate:
			out = append(out, nullable(v.Valid, v.Date))
		case decimal.NullDecimal:
			out = append(out, nullable(v.Valid, v.Decimal))
		default:
			out = append(out, v)
		}
	}
	return out
}

func nullable[T any](valid bool, v T) any {
	if !valid {
		return nil
	}
	return v
}

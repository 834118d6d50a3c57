package cell

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the representation of a raw spreadsheet cell.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindDate
)

// String returns a lower-case name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is one raw cell as produced by the spreadsheet reader.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Time time.Time
}

// Null returns an empty cell.
func Null() Value { return Value{} }

// Number returns a numeric cell.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text returns a textual cell.
func Text(s string) Value { return Value{Kind: KindText, Str: s} }

// Date returns a cell already holding a date.
func Date(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// IsEmpty reports whether the cell carries no usable content.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return strings.TrimSpace(v.Str) == ""
	}
	return false
}

// String renders the raw value for warnings and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		return v.Str
	case KindDate:
		return v.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

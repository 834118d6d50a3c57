// Package cell converts raw spreadsheet cells into typed column values.
package cell

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ErrUnparseable marks a non-empty cell that could not be coerced.
// The coerced value is null whenever this error is returned.
var ErrUnparseable = errors.New("unparseable value")

const msPerDay = 86_400_000

// serialEpoch is day zero of the spreadsheet serial-date convention.
// Using 1899-12-30 keeps the 1900 leap-year quirk of the format intact.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serials that fall outside years 1..9999 are not dates.
const maxSerialMagnitude = 4_000_000

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"02.01.2006",
	"2.1.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"Mon, 02 Jan 2006",
	"Mon Jan 2 2006",
	"2006-01",
	"2006",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
}

// CoerceDate converts a raw cell into a calendar date.
//
// Numbers are serial day counts from 1899-12-30, text is parsed against a
// list of common layouts, and date cells pass through truncated to the day.
func CoerceDate(v Value) (bigquery.NullDate, error) {
	switch v.Kind {
	case KindNumber:
		d, ok := DateFromSerial(v.Num)
		if !ok {
			return bigquery.NullDate{}, fmt.Errorf("%w: date serial %v", ErrUnparseable, v.Num)
		}
		return bigquery.NullDate{Date: d, Valid: true}, nil
	case KindText:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return bigquery.NullDate{}, nil
		}
		d, ok := parseDateText(s)
		if !ok {
			return bigquery.NullDate{}, fmt.Errorf("%w: date %q", ErrUnparseable, s)
		}
		return bigquery.NullDate{Date: d, Valid: true}, nil
	case KindDate:
		if v.Time.IsZero() {
			return bigquery.NullDate{}, nil
		}
		return bigquery.NullDate{Date: civil.DateOf(v.Time), Valid: true}, nil
	default:
		return bigquery.NullDate{}, nil
	}
}

// DateFromSerial returns epoch + serial days, scaled through milliseconds
// exactly as spreadsheet software does, truncated to the UTC calendar day.
func DateFromSerial(serial float64) (civil.Date, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || math.Abs(serial) > maxSerialMagnitude {
		return civil.Date{}, false
	}

	days := math.Floor(serial)
	ms := math.Round((serial - days) * msPerDay)
	t := serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)

	d := civil.DateOf(t)
	if d.Year < 1 || d.Year > 9999 {
		return civil.Date{}, false
	}
	return d, true
}

func parseDateText(s string) (civil.Date, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}

	// Serial numbers that arrived as text.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return DateFromSerial(f)
	}
	return civil.Date{}, false
}

// CoerceNumber converts a raw cell into a decimal.
//
// Text keeps only the characters [0-9.-] before parsing, so currency
// symbols, thousands separators and surrounding words are discarded.
// A failed parse yields null, never zero.
func CoerceNumber(v Value) (decimal.NullDecimal, error) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return decimal.NullDecimal{}, fmt.Errorf("%w: number %v", ErrUnparseable, v.Num)
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(v.Num)), nil
	case KindText:
		raw := strings.TrimSpace(v.Str)
		if raw == "" {
			return decimal.NullDecimal{}, nil
		}
		cleaned := StripNumeric(raw)
		if cleaned == "" {
			return decimal.NullDecimal{}, fmt.Errorf("%w: number %q", ErrUnparseable, raw)
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("%w: number %q", ErrUnparseable, raw)
		}
		return decimal.NewNullDecimal(d), nil
	case KindDate:
		return decimal.NullDecimal{}, fmt.Errorf("%w: date %s in numeric column", ErrUnparseable, v.Time.Format("2006-01-02"))
	default:
		return decimal.NullDecimal{}, nil
	}
}

// StripNumeric removes every rune outside [0-9.-].
func StripNumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
}

// CoerceText stringifies and trims a raw cell. Empty results are null.
func CoerceText(v Value) bigquery.NullString {
	var s string
	switch v.Kind {
	case KindNumber:
		s = strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		s = strings.TrimSpace(v.Str)
	case KindDate:
		if v.Time.IsZero() {
			return bigquery.NullString{}
		}
		s = v.Time.Format("2006-01-02")
	}

	if s == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}

// YearQuarter derives the calendar year and fiscal quarter label of d.
func YearQuarter(d civil.Date) (int, string) {
	month0 := int(d.Month) - 1
	return d.Year, "Q" + strconv.Itoa(month0/3+1)
}

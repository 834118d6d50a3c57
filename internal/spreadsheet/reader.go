// Package spreadsheet turns an uploaded workbook into header-keyed records.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/sales-tracker/internal/cell"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrInvalidWorkbook is returned when the payload is not a readable workbook.
	ErrInvalidWorkbook = errors.New("invalid spreadsheet")
	// ErrEmptySheet is returned when the first sheet yields no records.
	ErrEmptySheet = errors.New("empty sheet")
)

// RawRecord maps a sheet header, as authored, to its raw cell value.
// Cells absent from a row are absent from the record.
type RawRecord map[string]cell.Value

// Read parses the first sheet of a workbook. The first row is the header
// row; every following non-blank row becomes one record.
func Read(data []byte, fileName string) ([]RawRecord, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xls") {
		return readLegacy(data)
	}
	return readXLSX(data)
}

func readXLSX(data []byte) ([]RawRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptySheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrInvalidWorkbook, sheet, err)
	}

	var (
		headers []string
		records []RawRecord
	)
	for r, cols := range rows {
		rowNum := r + 1
		if headers == nil {
			if isBlank(cols) {
				continue
			}
			headers = normalizeHeaders(cols)
			continue
		}

		rec := make(RawRecord)
		for i, raw := range cols {
			if raw == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %v", ErrInvalidWorkbook, rowNum, i+1, err)
			}
			typ, err := f.GetCellType(sheet, ref)
			if err != nil {
				return nil, fmt.Errorf("%w: cell %s: %v", ErrInvalidWorkbook, ref, err)
			}
			v := typedValue(typ, raw)
			if v.Kind == cell.KindNull {
				continue
			}
			rec[headerAt(&headers, i)] = v
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	if headers == nil || len(records) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no data rows", ErrEmptySheet, sheet)
	}
	return records, nil
}

// typedValue classifies a raw cell string by its stored cell type.
func typedValue(typ excelize.CellType, raw string) cell.Value {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return cell.Text(raw)
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return cell.Text("TRUE")
		}
		return cell.Text("FALSE")
	case excelize.CellTypeError:
		return cell.Null()
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return cell.Date(t)
			}
		}
		return cell.Text(raw)
	default:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return cell.Number(n)
		}
		return cell.Text(raw)
	}
}

// normalizeHeaders names blank header cells __EMPTY, __EMPTY_1, ... and
// suffixes repeated headers with the first unused _1, _2, ...
func normalizeHeaders(cols []string) []string {
	headers := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	empty := 0

	for i, c := range cols {
		h := strings.TrimSpace(c)
		if h == "" {
			h = "__EMPTY"
			if empty > 0 {
				h = fmt.Sprintf("__EMPTY_%d", empty)
			}
			empty++
		}
		if n, dup := seen[h]; dup {
			base := h
			for {
				n++
				h = fmt.Sprintf("%s_%d", base, n)
				if _, taken := seen[h]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[h] = 0
		headers[i] = h
	}
	return headers
}

// headerAt returns the header of column i, naming columns wider than the
// header row like blank headers.
func headerAt(headers *[]string, i int) string {
	for len(*headers) <= i {
		n := 0
		for _, h := range *headers {
			if strings.HasPrefix(h, "__EMPTY") {
				n++
			}
		}
		name := "__EMPTY"
		if n > 0 {
			name = fmt.Sprintf("__EMPTY_%d", n)
		}
		*headers = append(*headers, name)
	}
	return (*headers)[i]
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

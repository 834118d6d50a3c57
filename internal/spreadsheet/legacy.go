package spreadsheet

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/cell"
	"github.com/shakinm/xlsReader/xls"
)

// oleSignature opens every compound-document (.xls) file.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// readLegacy reads the first sheet of a BIFF (.xls) workbook. The reader
// only opens files, so the payload is staged in a temp file.
func readLegacy(data []byte) ([]RawRecord, error) {
	if !bytes.HasPrefix(data, oleSignature) {
		return nil, fmt.Errorf("%w: not a compound document", ErrInvalidWorkbook)
	}

	tmp, err := os.CreateTemp("", "upload-*.xls")
	if err != nil {
		return nil, fmt.Errorf("readLegacy: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("readLegacy: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("readLegacy: closing temp file: %w", err)
	}

	workbook, err := openLegacy(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if workbook.GetNumberSheets() == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptySheet)
	}

	sheet, err := workbook.GetSheet(0)
	if err != nil || sheet == nil {
		return nil, fmt.Errorf("%w: first sheet unreadable: %v", ErrInvalidWorkbook, err)
	}

	var (
		headers []string
		records []RawRecord
	)
	for i := 0; i <= int(sheet.GetNumberRows()); i++ {
		row, err := sheet.GetRow(i)
		if err != nil || row == nil {
			continue
		}

		cols := make([]string, 0)
		for _, c := range row.GetCols() {
			if c == nil {
				cols = append(cols, "")
				continue
			}
			cols = append(cols, c.GetString())
		}

		if headers == nil {
			if isBlank(cols) {
				continue
			}
			headers = normalizeHeaders(cols)
			continue
		}

		rec := make(RawRecord)
		for j, raw := range cols {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				rec[headerAt(&headers, j)] = cell.Number(n)
			} else {
				rec[headerAt(&headers, j)] = cell.Text(raw)
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	if headers == nil || len(records) == 0 {
		return nil, fmt.Errorf("%w: first sheet has no data rows", ErrEmptySheet)
	}
	return records, nil
}

// openLegacy guards against panics inside the BIFF decoder on corrupt input.
func openLegacy(path string) (wb xls.Workbook, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoding xls: %v", r)
		}
	}()
	return xls.OpenFile(path)
}

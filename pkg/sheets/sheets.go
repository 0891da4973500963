// Package sheets fetches spreadsheet rows from Google Sheets and uploaded
// workbook files and presents them as header-keyed records.
package sheets

import (
	"context"
	"strings"
)

// Row is one data row of a sheet tab. Index is the 1-based position within
// the tab including the header row, so the first data row is index 2. Cells
// maps trimmed header names to cell text.
type Row struct {
	Index int
	Cells map[string]string
}

// Empty reports whether every cell in the row is blank
func (r Row) Empty() bool {
	for _, v := range r.Cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// RowFetcher retrieves all rows of one tab of a sheet
type RowFetcher interface {
	FetchRows(ctx context.Context, sheetURL, tabID string) ([]Row, error)
}

// buildRows zips a header row with data rows. Blank headers get a positional
// placeholder so their cells are not silently dropped.
func buildRows(records [][]string) []Row {
	if len(records) == 0 {
		return nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = columnName(i)
		}
		headers[i] = h
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		cells := make(map[string]string, len(headers))
		for j, header := range headers {
			if j < len(record) {
				cells[header] = strings.TrimSpace(record[j])
			} else {
				cells[header] = ""
			}
		}
		rows = append(rows, Row{Index: i + 2, Cells: cells})
	}
	return rows
}

// columnName returns the spreadsheet-style name of a zero-based column
// index: A, B, ..., Z, AA, AB, ...
func columnName(index int) string {
	name := ""
	for index >= 0 {
		name = string(rune('A'+index%26)) + name
		index = index/26 - 1
	}
	return name
}

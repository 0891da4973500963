package sheets

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads an uploaded Excel workbook and returns its rows keyed by
// header. sheetName selects the worksheet; empty means the first one.
func ParseXLSX(r io.Reader, sheetName string) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed opening workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}

	records, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed reading sheet %q: %w", sheetName, err)
	}

	return buildRows(records), nil
}

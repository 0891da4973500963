package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CSVFetcher downloads a sheet tab through the Google Sheets CSV export
// endpoint. It needs no credentials; the sheet must be link-readable.
type CSVFetcher struct {
	client *http.Client
}

// NewCSVFetcher creates a fetcher with the given request timeout
func NewCSVFetcher(timeout time.Duration) *CSVFetcher {
	return &CSVFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// ExportURL turns a sheet's edit URL into its CSV export URL for one tab.
// Everything from "/edit" onward is replaced.
func ExportURL(sheetURL, tabID string) string {
	base := sheetURL
	if i := strings.Index(base, "/edit"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	url := base + "/export?format=csv"
	if tabID != "" {
		url += "&gid=" + tabID
	}
	return url
}

// FetchRows downloads and parses one tab. The first sheet row is treated as
// the header.
func (f *CSVFetcher) FetchRows(ctx context.Context, sheetURL, tabID string) ([]Row, error) {
	url := ExportURL(sheetURL, tabID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed building export request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed fetching sheet export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sheet export returned status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1 // tabs are often ragged
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed parsing sheet CSV: %w", err)
	}

	return buildRows(records), nil
}

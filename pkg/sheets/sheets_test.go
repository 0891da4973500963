package sheets

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportURL(t *testing.T) {
	url := ExportURL("https://docs.google.com/spreadsheets/d/abc123/edit#gid=2095877733", "2095877733")
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=2095877733", url)

	// No /edit suffix and no tab
	url = ExportURL("https://docs.google.com/spreadsheets/d/abc123", "")
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123/export?format=csv", url)
}

func TestCSVFetcher_FetchRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		assert.Equal(t, "77", r.URL.Query().Get("gid"))
		w.Write([]byte("שם מלא,מס פלאפון,מייל\nDana Cohen,050-1234567,dana@example.com\n,,\nYossi Levi,052-7654321,yossi@example.com\n"))
	}))
	defer server.Close()

	fetcher := NewCSVFetcher(5 * time.Second)
	rows, err := fetcher.FetchRows(context.Background(), server.URL+"/edit#gid=77", "77")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "Dana Cohen", rows[0].Cells["שם מלא"])
	assert.Equal(t, "050-1234567", rows[0].Cells["מס פלאפון"])

	assert.True(t, rows[1].Empty())
	assert.False(t, rows[2].Empty())
	assert.Equal(t, 4, rows[2].Index)
}

func TestCSVFetcher_RaggedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("name,phone,email\nDana,050-1234567\n"))
	}))
	defer server.Close()

	fetcher := NewCSVFetcher(5 * time.Second)
	rows, err := fetcher.FetchRows(context.Background(), server.URL+"/edit", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dana", rows[0].Cells["name"])
	assert.Equal(t, "", rows[0].Cells["email"])
}

func TestCSVFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewCSVFetcher(5 * time.Second)
	_, err := fetcher.FetchRows(context.Background(), server.URL+"/edit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]string{"שם מלא", "טלפון", "מייל"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]string{"Dana Cohen", "050-1234567", "dana@example.com"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]string{"Yossi Levi", "052-7654321", "yossi@example.com"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ParseXLSX(&buf, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Dana Cohen", rows[0].Cells["שם מלא"])
	assert.Equal(t, "052-7654321", rows[1].Cells["טלפון"])
	assert.Equal(t, 3, rows[1].Index)
}

func TestBuildRows_BlankHeaderPlaceholder(t *testing.T) {
	rows := buildRows([][]string{
		{"name", "", "email"},
		{"Dana", "extra", "dana@example.com"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "extra", rows[0].Cells["B"])
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shmuelia/leadsmanager/pkg/database"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/sheets"
	"github.com/shmuelia/leadsmanager/pkg/store"
	syncpkg "github.com/shmuelia/leadsmanager/pkg/sync"

	_ "github.com/mattn/go-sqlite3"
)

var testDBSeq atomic.Int64

type fixture struct {
	echo     *echo.Echo
	store    *store.Store
	service  *leads.Service
	customer *models.Customer
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers%d?mode=memory&cache=shared&_fk=1", testDBSeq.Add(1))
	client, err := database.Open("sqlite3", dsn)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { client.Close() })

	st := store.New(client.DB)
	customer := &models.Customer{Name: "Acme", Active: true}
	require.NoError(t, st.Customers.Create(context.Background(), customer))

	return &fixture{
		echo:     echo.New(),
		store:    st,
		service:  leads.NewService(st.Leads, st.Customers, "IL"),
		customer: customer,
	}
}

func (f *fixture) jsonRequest(method, path string, body any) (*httptest.ResponseRecorder, echo.Context) {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, f.echo.NewContext(req, rec)
}

func TestWebhookHandler_Receive(t *testing.T) {
	f := setupFixture(t)
	h := NewWebhookHandler(f.service, nil, nil)

	rec, c := f.jsonRequest(http.MethodPost, "/webhook/1", map[string]any{
		"Full Name":     "Dana Cohen",
		"Email":         "dana@example.com",
		"phone":         "050-1234567",
		"campaign_name": "Summer Campaign",
	})
	c.SetPath("/webhook/:customer")
	c.SetParamNames("customer")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID))

	require.NoError(t, h.Receive(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var result leads.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, leads.OutcomeCreated, result.Outcome)
	assert.NotZero(t, result.LeadID)
}

func TestWebhookHandler_DuplicateAnswers200(t *testing.T) {
	f := setupFixture(t)
	h := NewWebhookHandler(f.service, nil, nil)

	payload := map[string]any{
		"name": "Dana", "email": "dana@example.com", "campaign_name": "C1",
	}

	send := func() (*httptest.ResponseRecorder, error) {
		rec, c := f.jsonRequest(http.MethodPost, "/webhook/1", payload)
		c.SetParamNames("customer")
		c.SetParamValues(fmt.Sprintf("%d", f.customer.ID))
		return rec, h.Receive(c)
	}

	rec, err := send()
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Platform retry: same payload must not 4xx or create a second lead
	rec, err = send()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var result leads.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, leads.OutcomeDuplicate, result.Outcome)
}

func TestWebhookHandler_UnknownCustomer(t *testing.T) {
	f := setupFixture(t)
	h := NewWebhookHandler(f.service, nil, nil)

	rec, c := f.jsonRequest(http.MethodPost, "/webhook/424242", map[string]any{"name": "Dana"})
	c.SetParamNames("customer")
	c.SetParamValues("424242")

	require.NoError(t, h.Receive(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler_Verify(t *testing.T) {
	f := setupFixture(t)
	h := NewWebhookHandler(f.service, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook/1?hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)

	require.NoError(t, h.Verify(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestLeadHandler_ListAndGet(t *testing.T) {
	f := setupFixture(t)
	h := NewLeadHandler(f.service, nil)
	ctx := context.Background()

	created, err := f.service.Ingest(ctx, leads.IngestInput{
		CustomerID: f.customer.ID,
		Payload:    map[string]any{"name": "Dana", "phone": "050-1234567"},
	})
	require.NoError(t, err)

	rec, c := f.jsonRequest(http.MethodGet, "/api/customers/1/leads", nil)
	c.SetParamNames("customer")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID))
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Leads []models.Lead `json:"leads"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Total)
	require.Len(t, listResp.Leads, 1)
	assert.Equal(t, "Dana", listResp.Leads[0].Name)

	rec, c = f.jsonRequest(http.MethodGet, "/api/customers/1/leads/1", nil)
	c.SetParamNames("customer", "id")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID), fmt.Sprintf("%d", created.LeadID))
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var getResp struct {
		Lead       models.Lead           `json:"lead"`
		Activities []models.LeadActivity `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	assert.Equal(t, "Dana", getResp.Lead.Name)
	require.Len(t, getResp.Activities, 1)
}

func TestLeadHandler_GetNotFound(t *testing.T) {
	f := setupFixture(t)
	h := NewLeadHandler(f.service, nil)

	rec, c := f.jsonRequest(http.MethodGet, "/api/customers/1/leads/999", nil)
	c.SetParamNames("customer", "id")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID), "999")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeadHandler_UpdateStatus(t *testing.T) {
	f := setupFixture(t)
	h := NewLeadHandler(f.service, nil)
	ctx := context.Background()

	created, err := f.service.Ingest(ctx, leads.IngestInput{
		CustomerID: f.customer.ID,
		Payload:    map[string]any{"name": "Dana", "phone": "050-1234567"},
	})
	require.NoError(t, err)

	rec, c := f.jsonRequest(http.MethodPut, "/api/customers/1/leads/1/status", models.UpdateStatusRequest{
		Status: "contacted", Actor: "agent1", Reason: "Called back",
	})
	c.SetParamNames("customer", "id")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID), fmt.Sprintf("%d", created.LeadID))
	require.NoError(t, h.UpdateStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Missing reason fails validation
	rec, c = f.jsonRequest(http.MethodPut, "/api/customers/1/leads/1/status", map[string]string{
		"status": "qualified", "actor": "agent1",
	})
	c.SetParamNames("customer", "id")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID), fmt.Sprintf("%d", created.LeadID))
	require.NoError(t, h.UpdateStatus(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignHandler_CreateAndResetWatermark(t *testing.T) {
	f := setupFixture(t)
	h := NewCampaignHandler(f.store.Campaigns, f.store.Customers)
	ctx := context.Background()

	rec, c := f.jsonRequest(http.MethodPost, "/api/campaigns", models.CreateCampaignRequest{
		CustomerID: f.customer.ID,
		Name:       "Summer Campaign",
		SheetURL:   "https://docs.google.com/spreadsheets/d/abc/edit",
		TabID:      "0",
		ColumnMapping: models.ColumnMapping{
			Name: "שם מלא", Phone: "מס פלאפון", Email: "מייל",
		},
	})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var campaign models.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaign))
	require.NotZero(t, campaign.ID)

	require.NoError(t, f.store.Campaigns.SetWatermark(ctx, campaign.ID, "0", 42))

	rec, c = f.jsonRequest(http.MethodPost, "/api/campaigns/1/reset-watermark", nil)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprintf("%d", campaign.ID))
	require.NoError(t, h.ResetWatermark(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	wm, err := f.store.Campaigns.GetWatermark(ctx, campaign.ID, "0")
	require.NoError(t, err)
	assert.Equal(t, 0, wm)
}

func TestCampaignHandler_CreateUnknownCustomer(t *testing.T) {
	f := setupFixture(t)
	h := NewCampaignHandler(f.store.Campaigns, f.store.Customers)

	rec, c := f.jsonRequest(http.MethodPost, "/api/campaigns", models.CreateCampaignRequest{
		CustomerID: 424242,
		Name:       "Ghost",
		SheetURL:   "https://docs.google.com/spreadsheets/d/abc/edit",
	})
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// stubFetcher returns a fixed set of rows for any tab
type stubFetcher struct {
	rows []sheets.Row
}

func (s *stubFetcher) FetchRows(context.Context, string, string) ([]sheets.Row, error) {
	return s.rows, nil
}

func TestSyncHandler_PreviewQuery(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	campaign := &models.Campaign{
		CustomerID: f.customer.ID,
		Name:       "Summer Campaign",
		SheetURL:   "https://docs.google.com/spreadsheets/d/abc/edit",
		TabID:      "0",
		Active:     true,
		ColumnMapping: models.ColumnMapping{
			Name: "שם מלא", Phone: "מס פלאפון", Email: "מייל",
		},
	}
	require.NoError(t, f.store.Campaigns.Create(ctx, campaign))

	fetcher := &stubFetcher{rows: []sheets.Row{
		{Index: 2, Cells: map[string]string{
			"שם מלא": "Dana Cohen", "מס פלאפון": "050-1234567", "מייל": "dana@example.com",
		}},
	}}
	engine := syncpkg.NewEngine(fetcher, f.service, f.store.Campaigns, nil, time.Minute, nil)
	orch := syncpkg.NewOrchestrator(engine, f.store.Campaigns, nil, nil)
	h := NewSyncHandler(orch)

	rec, c := f.jsonRequest(http.MethodPost, "/api/sync?preview=true", nil)
	require.NoError(t, h.SyncAll(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report syncpkg.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Preview)
	assert.Equal(t, 1, report.Campaigns)

	// Preview wrote nothing
	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Real run persists
	rec, c = f.jsonRequest(http.MethodPost, "/api/sync", nil)
	require.NoError(t, h.SyncAll(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	count, err = f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImportHandler_ImportXLSX(t *testing.T) {
	f := setupFixture(t)
	h := NewImportHandler(f.service, nil)

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]string{"שם מלא", "טלפון", "מייל"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]string{"Dana Cohen", "050-1234567", "dana@example.com"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A3", &[]string{"Yossi Levi", "052-7654321", "yossi@example.com"}))

	var workbook bytes.Buffer
	require.NoError(t, wb.Write(&workbook))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "leads.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/customers/1/import/xlsx", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)
	c.SetParamNames("customer")
	c.SetParamValues(fmt.Sprintf("%d", f.customer.ID))

	require.NoError(t, h.ImportXLSX(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var result ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 2, result.Created)

	count, err := f.service.Count(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCustomerHandler_CreateAndList(t *testing.T) {
	f := setupFixture(t)
	h := NewCustomerHandler(f.store.Customers)

	rec, c := f.jsonRequest(http.MethodPost, "/api/customers", map[string]string{"name": "Beta School"})
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, c = f.jsonRequest(http.MethodGet, "/api/customers", nil)
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Beta School"))
	assert.True(t, strings.Contains(rec.Body.String(), "Acme"))
}

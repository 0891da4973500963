package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmuelia/leadsmanager/pkg/cache"
	"github.com/shmuelia/leadsmanager/pkg/database"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/sheets"
	"github.com/shmuelia/leadsmanager/pkg/store"

	_ "github.com/mattn/go-sqlite3"
)

var testDBSeq atomic.Int64

// fakeFetcher serves canned rows per tab id
type fakeFetcher struct {
	rows map[string][]sheets.Row
	errs map[string]error
}

func (f *fakeFetcher) FetchRows(_ context.Context, _ string, tabID string) ([]sheets.Row, error) {
	if err := f.errs[tabID]; err != nil {
		return nil, err
	}
	return f.rows[tabID], nil
}

func sheetRow(index int, name, phone, email string) sheets.Row {
	return sheets.Row{Index: index, Cells: map[string]string{
		"שם מלא":   name,
		"מס פלאפון": phone,
		"מייל":     email,
	}}
}

type syncFixture struct {
	store    *store.Store
	service  *leads.Service
	customer *models.Customer
	campaign *models.Campaign
	fetcher  *fakeFetcher
	engine   *Engine
}

func setupSync(t *testing.T) *syncFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:sync%d?mode=memory&cache=shared&_fk=1", testDBSeq.Add(1))
	client, err := database.Open("sqlite3", dsn)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { client.Close() })

	st := store.New(client.DB)
	ctx := context.Background()

	customer := &models.Customer{Name: "Acme", Active: true}
	require.NoError(t, st.Customers.Create(ctx, customer))

	campaign := &models.Campaign{
		CustomerID: customer.ID,
		Name:       "Summer Campaign",
		SheetURL:   "https://docs.google.com/spreadsheets/d/abc/edit",
		TabID:      "0",
		Active:     true,
		ColumnMapping: models.ColumnMapping{
			Name:  "שם מלא",
			Phone: "מס פלאפון",
			Email: "מייל",
		},
	}
	require.NoError(t, st.Campaigns.Create(ctx, campaign))

	fetcher := &fakeFetcher{rows: map[string][]sheets.Row{}, errs: map[string]error{}}
	service := leads.NewService(st.Leads, st.Customers, "IL")
	engine := NewEngine(fetcher, service, st.Campaigns, nil, time.Minute, nil)

	return &syncFixture{
		store: st, service: service, customer: customer,
		campaign: campaign, fetcher: fetcher, engine: engine,
	}
}

func TestEngine_SyncCampaign(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
		sheetRow(3, "", "", ""), // empty row left between entries
		sheetRow(4, "Yossi Levi", "052-3334444", "yossi@example.com"),
		sheetRow(5, "No Email", "053-5556666", ""), // broken row
	}

	report, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.RowsSeen)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.SkippedEmpty)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 5, report.Watermark)

	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Synced leads carry the campaign name and sheet provenance
	all, _, err := f.service.List(ctx, f.customer.ID, 10, 0)
	require.NoError(t, err)
	for _, lead := range all {
		assert.Equal(t, "Summer Campaign", lead.CampaignName)
		assert.Equal(t, "google_sheets", lead.Platform)
	}

	wm, err := f.store.Campaigns.GetWatermark(ctx, f.campaign.ID, "0")
	require.NoError(t, err)
	assert.Equal(t, 5, wm)
}

func TestEngine_IncrementalResync(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}
	_, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)

	// Second run with one appended row only touches the new row
	f.fetcher.rows["0"] = append(f.fetcher.rows["0"],
		sheetRow(3, "Yossi Levi", "052-3334444", "yossi@example.com"))

	report, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsSeen)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Duplicates)

	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEngine_ResyncAfterResetDeduplicates(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}
	_, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)

	// Full re-read after a watermark reset: existing rows classify as
	// duplicates instead of producing copies
	require.NoError(t, f.store.Campaigns.ResetWatermark(ctx, f.campaign.ID, "0"))

	report, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Duplicates)

	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_FetchErrorKeepsWatermark(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}
	_, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)

	f.fetcher.errs["0"] = errors.New("connection reset")
	_, err = f.engine.SyncCampaign(ctx, f.campaign, false)
	require.Error(t, err)

	wm, err := f.store.Campaigns.GetWatermark(ctx, f.campaign.ID, "0")
	require.NoError(t, err)
	assert.Equal(t, 2, wm)
}

func TestEngine_Preview(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	// Dana already exists; Yossi would be new
	_, err := f.service.Ingest(ctx, leads.IngestInput{
		CustomerID: f.customer.ID,
		Payload: map[string]any{
			"name": "Dana Cohen", "email": "dana@example.com",
			"phone": "050-1112222", "campaign_name": "Summer Campaign",
		},
	})
	require.NoError(t, err)

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
		sheetRow(3, "Yossi Levi", "052-3334444", "yossi@example.com"),
		sheetRow(4, "No Email", "053-5556666", ""),
	}

	report, err := f.engine.SyncCampaign(ctx, f.campaign, true)
	require.NoError(t, err)
	assert.True(t, report.Preview)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Invalid)

	// Nothing written, watermark untouched
	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	wm, err := f.store.Campaigns.GetWatermark(ctx, f.campaign.ID, "0")
	require.NoError(t, err)
	assert.Equal(t, 0, wm)
}

func TestEngine_UnconfiguredMapping(t *testing.T) {
	f := setupSync(t)

	f.campaign.ColumnMapping = models.ColumnMapping{}
	_, err := f.engine.SyncCampaign(context.Background(), f.campaign, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column mapping")
}

func TestEngine_LockedTab(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	locker := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	defer locker.Close()

	engine := NewEngine(f.fetcher, f.service, f.store.Campaigns, locker, time.Minute, nil)

	// Another run holds the tab
	key := cache.SyncLockKey(f.customer.ID, f.campaign.ID, f.campaign.TabID)
	ok, err := locker.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = engine.SyncCampaign(ctx, f.campaign, false)
	assert.ErrorIs(t, err, ErrLocked)

	// Freed lock lets the sync proceed
	require.NoError(t, locker.ReleaseLock(ctx, key))
	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}
	report, err := engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	// Lock is released afterwards
	ok, err = locker.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_CustomFieldColumns(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	// One column the mapping lists explicitly, one it never mentions.
	// Both must survive on the lead under their original headers.
	f.campaign.ColumnMapping.CustomFields = []string{"הערות"}
	row := sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com")
	row.Cells["הערות"] = "מתעניינת בקורס ערב"
	row.Cells["City"] = "Haifa"
	f.fetcher.rows["0"] = []sheets.Row{row}

	report, err := f.engine.SyncCampaign(ctx, f.campaign, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)

	all, _, err := f.service.List(ctx, f.customer.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "מתעניינת בקורס ערב", all[0].CustomData["הערות"])
	assert.Equal(t, "Haifa", all[0].CustomData["City"])
	assert.Equal(t, "מתעניינת בקורס ערב", all[0].RawData["הערות"])

	// Mapped columns become canonical fields, not custom data
	assert.Equal(t, "Dana Cohen", all[0].Name)
	assert.NotContains(t, all[0].CustomData, "שם מלא")
}

func TestOrchestrator_IsolatesFailures(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	broken := &models.Campaign{
		CustomerID: f.customer.ID,
		Name:       "Broken Campaign",
		SheetURL:   "https://docs.google.com/spreadsheets/d/def/edit",
		TabID:      "99",
		Active:     true,
		ColumnMapping: models.ColumnMapping{
			Name: "שם מלא", Phone: "מס פלאפון", Email: "מייל",
		},
	}
	require.NoError(t, f.store.Campaigns.Create(ctx, broken))

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}
	f.fetcher.errs["99"] = errors.New("sheet export returned status 403")

	orch := NewOrchestrator(f.engine, f.store.Campaigns, nil, nil)
	report, err := orch.SyncAll(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Campaigns)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken.ID, report.Failures[0].CampaignID)
	assert.Contains(t, report.Failures[0].Error, "403")

	// The healthy campaign still ingested its rows
	count, err := f.service.Count(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrchestrator_SyncCampaignByID(t *testing.T) {
	f := setupSync(t)
	ctx := context.Background()

	f.fetcher.rows["0"] = []sheets.Row{
		sheetRow(2, "Dana Cohen", "050-1112222", "dana@example.com"),
	}

	orch := NewOrchestrator(f.engine, f.store.Campaigns, nil, nil)
	tab, err := orch.SyncCampaign(ctx, f.campaign.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, tab.Created)

	_, err = orch.SyncCampaign(ctx, 424242, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

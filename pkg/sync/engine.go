// Package sync pulls campaign spreadsheet tabs into the lead store. Each tab
// keeps a per-tab watermark so repeated runs only look at rows added since
// the last one.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shmuelia/leadsmanager/pkg/cache"
	"github.com/shmuelia/leadsmanager/pkg/fields"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/logger"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/sheets"
)

// ErrLocked means another sync run currently holds the tab
var ErrLocked = errors.New("sync already running for this tab")

// Ingestor is the slice of the lead service the engine needs
type Ingestor interface {
	IngestNormalized(ctx context.Context, in leads.IngestInput, normalized fields.Normalized) (*leads.Result, error)
	CheckDuplicate(ctx context.Context, customerID int, email, phone, campaignName, externalID string) (int, bool, error)
}

// CampaignRepository is the persistence surface for watermark bookkeeping
type CampaignRepository interface {
	GetWatermark(ctx context.Context, campaignID int, tabID string) (int, error)
	SetWatermark(ctx context.Context, campaignID int, tabID string, rowIndex int) error
	TouchSynced(ctx context.Context, campaignID int, at time.Time) error
}

// Locker serializes concurrent runs over the same tab
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// TabReport summarizes one sync pass over one campaign tab
type TabReport struct {
	CampaignID   int    `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	TabID        string `json:"tab_id"`
	Preview      bool   `json:"preview,omitempty"`
	RowsSeen     int    `json:"rows_seen"`
	Created      int    `json:"created"`
	Duplicates   int    `json:"duplicates"`
	Invalid      int    `json:"invalid"`
	SkippedEmpty int    `json:"skipped_empty"`
	Watermark    int    `json:"watermark"`
}

// Engine performs the incremental sync of one campaign tab
type Engine struct {
	fetcher   sheets.RowFetcher
	ingestor  Ingestor
	campaigns CampaignRepository
	locker    Locker
	lockTTL   time.Duration
	log       logger.Logger
}

// NewEngine creates a sync engine
func NewEngine(fetcher sheets.RowFetcher, ingestor Ingestor, campaigns CampaignRepository, locker Locker, lockTTL time.Duration, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		fetcher:   fetcher,
		ingestor:  ingestor,
		campaigns: campaigns,
		locker:    locker,
		lockTTL:   lockTTL,
		log:       log,
	}
}

// SyncCampaign pulls one campaign's tab and ingests every row past the tab's
// watermark. The watermark advances after each processed row, including rows
// that turn out empty, duplicate or invalid; it does not advance past a row
// that fails with a transient error, so the next run retries from there.
//
// In preview mode nothing is written: rows are classified against the
// current store and the watermark stays put.
func (e *Engine) SyncCampaign(ctx context.Context, campaign *models.Campaign, preview bool) (*TabReport, error) {
	report := &TabReport{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		TabID:        campaign.TabID,
		Preview:      preview,
	}

	if !campaign.ColumnMapping.Configured() {
		return report, fmt.Errorf("campaign %d has no usable column mapping", campaign.ID)
	}
	if campaign.SheetURL == "" {
		return report, fmt.Errorf("campaign %d has no sheet URL", campaign.ID)
	}

	if !preview && e.locker != nil {
		key := cache.SyncLockKey(campaign.CustomerID, campaign.ID, campaign.TabID)
		ok, err := e.locker.AcquireLock(ctx, key, e.lockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire sync lock: %w", err)
		}
		if !ok {
			return report, ErrLocked
		}
		defer e.locker.ReleaseLock(context.WithoutCancel(ctx), key)
	}

	rows, err := e.fetcher.FetchRows(ctx, campaign.SheetURL, campaign.TabID)
	if err != nil {
		return report, fmt.Errorf("fetch campaign %d tab %s: %w", campaign.ID, campaign.TabID, err)
	}

	watermark, err := e.campaigns.GetWatermark(ctx, campaign.ID, campaign.TabID)
	if err != nil {
		return report, fmt.Errorf("read watermark: %w", err)
	}
	report.Watermark = watermark

	for _, row := range rows {
		if row.Index <= watermark {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.RowsSeen++

		if row.Empty() {
			report.SkippedEmpty++
			if err := e.advance(ctx, campaign, report, row.Index, preview); err != nil {
				return report, err
			}
			continue
		}

		normalized, payload := mapRow(campaign, row)

		if preview {
			if normalized.Name == "" || normalized.Phone == "" || normalized.Email == "" {
				report.Invalid++
				continue
			}
			_, found, err := e.ingestor.CheckDuplicate(ctx, campaign.CustomerID, normalized.Email, normalized.Phone, normalized.CampaignName, "")
			if err != nil {
				return report, err
			}
			if found {
				report.Duplicates++
			} else {
				report.Created++
			}
			continue
		}

		result, err := e.ingestor.IngestNormalized(ctx, leads.IngestInput{
			CustomerID: campaign.CustomerID,
			Platform:   "google_sheets",
			Payload:    payload,
			Policy:     leads.PolicySheet,
		}, normalized)
		if err != nil {
			// Transient failure: stop here, watermark stays below this row
			return report, fmt.Errorf("ingest row %d: %w", row.Index, err)
		}

		switch result.Outcome {
		case leads.OutcomeCreated:
			report.Created++
		case leads.OutcomeDuplicate:
			report.Duplicates++
		case leads.OutcomeRejected:
			report.Invalid++
			e.log.Warn("Skipping invalid sheet row",
				"campaign_id", campaign.ID, "row", row.Index, "reason", result.Reason)
		}

		if err := e.advance(ctx, campaign, report, row.Index, preview); err != nil {
			return report, err
		}
	}

	if !preview {
		if err := e.campaigns.TouchSynced(ctx, campaign.ID, time.Now().UTC()); err != nil {
			return report, fmt.Errorf("touch campaign %d: %w", campaign.ID, err)
		}
	}

	e.log.Info("✅ Tab synced",
		"campaign_id", campaign.ID, "tab_id", campaign.TabID, "preview", preview,
		"rows", report.RowsSeen, "created", report.Created,
		"duplicates", report.Duplicates, "invalid", report.Invalid)

	return report, nil
}

func (e *Engine) advance(ctx context.Context, campaign *models.Campaign, report *TabReport, rowIndex int, preview bool) error {
	if preview {
		return nil
	}
	if err := e.campaigns.SetWatermark(ctx, campaign.ID, campaign.TabID, rowIndex); err != nil {
		return fmt.Errorf("advance watermark to row %d: %w", rowIndex, err)
	}
	report.Watermark = rowIndex
	return nil
}

// mapRow resolves one sheet row through the campaign's column mapping. Cells
// under mapped headers become canonical fields; every other non-empty cell
// is carried into CustomFields under its original header, so sheet columns
// the mapping never named still survive on the lead.
func mapRow(campaign *models.Campaign, row sheets.Row) (fields.Normalized, map[string]any) {
	m := campaign.ColumnMapping

	payload := make(map[string]any, len(row.Cells))
	for k, v := range row.Cells {
		payload[k] = v
	}

	normalized := fields.Normalized{
		Name:  row.Cells[m.Name],
		Phone: row.Cells[m.Phone],
		Email: row.Cells[m.Email],
	}

	if m.Campaign != "" && row.Cells[m.Campaign] != "" {
		normalized.CampaignName = row.Cells[m.Campaign]
	} else {
		normalized.CampaignName = campaign.Name
	}

	if m.Date != "" {
		normalized.SourceCreated = fields.ParseTime(row.Cells[m.Date])
	}

	mapped := map[string]bool{m.Name: true, m.Phone: true, m.Email: true, m.Campaign: true, m.Date: true}
	for header, v := range row.Cells {
		if mapped[header] || v == "" {
			continue
		}
		if normalized.CustomFields == nil {
			normalized.CustomFields = make(map[string]any)
		}
		normalized.CustomFields[header] = v
	}

	normalized.LeadSource = "google_sheets"
	return normalized, payload
}

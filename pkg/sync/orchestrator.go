package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/shmuelia/leadsmanager/pkg/logger"
	"github.com/shmuelia/leadsmanager/pkg/metrics"
	"github.com/shmuelia/leadsmanager/pkg/models"
)

// CampaignLister enumerates campaigns eligible for sync
type CampaignLister interface {
	CampaignRepository
	ListActive(ctx context.Context) ([]*models.Campaign, error)
	GetByID(ctx context.Context, id int) (*models.Campaign, error)
}

// CampaignFailure records one campaign that could not be synced
type CampaignFailure struct {
	CampaignID   int    `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	Error        string `json:"error"`
}

// RunReport aggregates a full sync pass over every active campaign
type RunReport struct {
	Preview   bool              `json:"preview,omitempty"`
	Campaigns int               `json:"campaigns"`
	Succeeded int               `json:"succeeded"`
	Locked    int               `json:"locked"`
	Tabs      []*TabReport      `json:"tabs"`
	Failures  []CampaignFailure `json:"failures,omitempty"`
}

// Orchestrator fans a sync run out across every active campaign. A failing
// campaign never blocks the rest of the run.
type Orchestrator struct {
	engine    *Engine
	campaigns CampaignLister
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(engine *Engine, campaigns CampaignLister, m *metrics.Metrics, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		engine:    engine,
		campaigns: campaigns,
		metrics:   m,
		log:       log,
	}
}

// SyncAll runs the engine over every active campaign in sequence, collecting
// per-campaign results and failures into one report. It only returns an
// error when the campaign list itself cannot be loaded.
func (o *Orchestrator) SyncAll(ctx context.Context, preview bool) (*RunReport, error) {
	active, err := o.campaigns.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	report := &RunReport{Preview: preview, Campaigns: len(active)}
	o.log.Info("🔄 Starting sync run", "campaigns", len(active), "preview", preview)

	for _, campaign := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tab := o.syncOne(ctx, campaign, preview, report)
		report.Tabs = append(report.Tabs, tab)
	}

	o.log.Info("✅ Sync run finished",
		"campaigns", report.Campaigns, "succeeded", report.Succeeded,
		"locked", report.Locked, "failed", len(report.Failures))
	return report, nil
}

// SyncCampaign runs one campaign by id, regardless of its active flag
func (o *Orchestrator) SyncCampaign(ctx context.Context, campaignID int, preview bool) (*TabReport, error) {
	campaign, err := o.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	tab, err := o.engine.SyncCampaign(ctx, campaign, preview)
	o.recordRun(tab, err)
	return tab, err
}

func (o *Orchestrator) syncOne(ctx context.Context, campaign *models.Campaign, preview bool, report *RunReport) *TabReport {
	tab, err := o.engine.SyncCampaign(ctx, campaign, preview)
	o.recordRun(tab, err)

	switch {
	case errors.Is(err, ErrLocked):
		report.Locked++
		o.log.Warn("Tab locked by another run, skipping",
			"campaign_id", campaign.ID, "tab_id", campaign.TabID)
	case err != nil:
		report.Failures = append(report.Failures, CampaignFailure{
			CampaignID:   campaign.ID,
			CampaignName: campaign.Name,
			Error:        err.Error(),
		})
		o.log.Error("❌ Campaign sync failed",
			"campaign_id", campaign.ID, "campaign_name", campaign.Name, "error", err)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("campaign_id", fmt.Sprintf("%d", campaign.ID))
			scope.SetTag("tab_id", campaign.TabID)
			sentry.CaptureException(err)
		})
	default:
		report.Succeeded++
	}
	return tab
}

func (o *Orchestrator) recordRun(tab *TabReport, err error) {
	switch {
	case errors.Is(err, ErrLocked):
		o.metrics.RecordSyncRun("locked")
	case err != nil:
		o.metrics.RecordSyncRun("error")
	default:
		o.metrics.RecordSyncRun("success")
	}
	if tab != nil {
		o.metrics.RecordSyncRows(tab.RowsSeen)
	}
}

package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shmuelia/leadsmanager/pkg/logger"
	"github.com/shmuelia/leadsmanager/pkg/sync"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron         *cron.Cron
	orchestrator *sync.Orchestrator
	schedule     string
	log          logger.Logger
}

// NewCronManager creates a new cron manager. schedule is a standard cron
// expression for the recurring sheet sync.
func NewCronManager(orchestrator *sync.Orchestrator, schedule string, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CronManager{
		cron:         cron.New(),
		orchestrator: orchestrator,
		schedule:     schedule,
		log:          log,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.log.Info("Setting up cron jobs...")

	_, err := cm.cron.AddFunc(cm.schedule, func() {
		cm.log.Info("🕐 Running scheduled sheet sync...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		report, err := cm.orchestrator.SyncAll(ctx, false)
		if err != nil {
			cm.log.Error("❌ Scheduled sync failed", "error", err)
			return
		}

		cm.log.Info("✅ Scheduled sync completed",
			"campaigns", report.Campaigns, "succeeded", report.Succeeded,
			"failed", len(report.Failures), "locked", report.Locked)
	})
	if err != nil {
		return err
	}

	cm.log.Info("✅ Cron jobs configured successfully", "sync_schedule", cm.schedule)
	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.log.Info("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.log.Info("🛑 Stopping cron scheduler...")
	cm.cron.Stop()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shmuelia/leadsmanager/pkg/models"
)

// CampaignStore persists sheet-source campaigns and their per-tab watermarks
type CampaignStore struct {
	db *sql.DB
}

const campaignColumns = `id, customer_id, campaign_name, sheet_id, sheet_url, tab_id,
	column_mapping, active, last_synced_row, last_synced_at, created_at, updated_at`

// Create inserts a campaign
func (s *CampaignStore) Create(ctx context.Context, c *models.Campaign) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	mapping, err := marshalJSON(c.ColumnMapping)
	if err != nil {
		return err
	}
	watermarks, err := marshalJSON(c.LastSyncedRow)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (customer_id, campaign_name, sheet_id, sheet_url, tab_id,
			column_mapping, active, last_synced_row, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		c.CustomerID, c.Name, c.SheetID, c.SheetURL, c.TabID,
		mapping, c.Active, watermarks, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// Update writes campaign configuration
func (s *CampaignStore) Update(ctx context.Context, c *models.Campaign) error {
	mapping, err := marshalJSON(c.ColumnMapping)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET campaign_name = $1, sheet_id = $2, sheet_url = $3, tab_id = $4,
			column_mapping = $5, active = $6, updated_at = $7
		WHERE id = $8 AND customer_id = $9`,
		c.Name, c.SheetID, c.SheetURL, c.TabID, mapping, c.Active, c.UpdatedAt,
		c.ID, c.CustomerID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches one campaign
func (s *CampaignStore) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

// List returns all campaigns for a customer
func (s *CampaignStore) List(ctx context.Context, customerID int) ([]*models.Campaign, error) {
	return s.query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE customer_id = $1 ORDER BY id`,
		customerID)
}

// ListActive returns every active campaign with a sheet source, across all
// customers, in stable id order. This is the orchestrator's work list.
func (s *CampaignStore) ListActive(ctx context.Context) ([]*models.Campaign, error) {
	return s.query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE active = TRUE AND sheet_url <> ''
		 ORDER BY id`)
}

// GetWatermark returns the last fully processed row index for a tab.
// Zero means the tab has never been synced.
func (s *CampaignStore) GetWatermark(ctx context.Context, campaignID int, tabID string) (int, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_row FROM campaigns WHERE id = $1`, campaignID).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}

	watermarks := map[string]int{}
	if err := unmarshalJSON(raw, &watermarks); err != nil {
		return 0, fmt.Errorf("decode watermark map: %w", err)
	}
	return watermarks[tabID], nil
}

// SetWatermark advances the stored row index for a tab. Watermarks are
// monotonic: an attempt to move one backwards is ignored. Concurrent runs
// for the same tab are excluded by the sync lock, so a plain
// read-modify-write transaction is sufficient here.
func (s *CampaignStore) SetWatermark(ctx context.Context, campaignID int, tabID string, rowIndex int) error {
	return s.writeWatermark(ctx, campaignID, tabID, rowIndex, false)
}

// ResetWatermark clears the stored row index for a tab so the next sync
// reprocesses it from the beginning. This is the only way a watermark moves
// backwards.
func (s *CampaignStore) ResetWatermark(ctx context.Context, campaignID int, tabID string) error {
	return s.writeWatermark(ctx, campaignID, tabID, 0, true)
}

func (s *CampaignStore) writeWatermark(ctx context.Context, campaignID int, tabID string, rowIndex int, reset bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin watermark update: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT last_synced_row FROM campaigns WHERE id = $1`, campaignID).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}

	watermarks := map[string]int{}
	if err := unmarshalJSON(raw, &watermarks); err != nil {
		return fmt.Errorf("decode watermark map: %w", err)
	}

	if reset {
		delete(watermarks, tabID)
	} else {
		if watermarks[tabID] >= rowIndex {
			return tx.Commit()
		}
		watermarks[tabID] = rowIndex
	}

	encoded, err := marshalJSON(watermarks)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET last_synced_row = $1, updated_at = $2 WHERE id = $3`,
		encoded, time.Now(), campaignID); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return tx.Commit()
}

// TouchSynced records when a campaign last completed a sync run
func (s *CampaignStore) TouchSynced(ctx context.Context, campaignID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET last_synced_at = $1 WHERE id = $2`, at, campaignID)
	return err
}

func (s *CampaignStore) query(ctx context.Context, query string, args ...any) ([]*models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var mapping, watermarks []byte
	var lastSynced sql.NullTime

	err := row.Scan(&c.ID, &c.CustomerID, &c.Name, &c.SheetID, &c.SheetURL, &c.TabID,
		&mapping, &c.Active, &watermarks, &lastSynced, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := unmarshalJSON(mapping, &c.ColumnMapping); err != nil {
		return nil, fmt.Errorf("decode column_mapping: %w", err)
	}
	c.LastSyncedRow = map[string]int{}
	if err := unmarshalJSON(watermarks, &c.LastSyncedRow); err != nil {
		return nil, fmt.Errorf("decode last_synced_row: %w", err)
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		c.LastSyncedAt = &t
	}
	return &c, nil
}

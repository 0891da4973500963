package models

import "time"

// ColumnMapping is a tenant-configured table from spreadsheet column header
// to canonical lead field. Unlike webhook normalization there is no
// guessing: a header either maps to a field or is carried into the lead's
// custom data under its original header. CustomFields lets tenants annotate
// which extra columns they care about; it does not gate the carry-over.
type ColumnMapping struct {
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"email,omitempty"`
	Campaign     string   `json:"campaign,omitempty"`
	Date         string   `json:"date,omitempty"`
	CustomFields []string `json:"custom_fields,omitempty"`
}

// Configured reports whether the mapping is usable for sync.
// A mapping without a name column cannot produce leads.
func (m ColumnMapping) Configured() bool {
	return m.Name != ""
}

// Campaign configures one spreadsheet tab as a lead source for a customer
type Campaign struct {
	ID            int            `json:"id"`
	CustomerID    int            `json:"customer_id"`
	Name          string         `json:"campaign_name"`
	SheetID       string         `json:"sheet_id,omitempty"`
	SheetURL      string         `json:"sheet_url"`
	TabID         string         `json:"tab_id"`
	ColumnMapping ColumnMapping  `json:"column_mapping"`
	Active        bool           `json:"active"`
	LastSyncedRow map[string]int `json:"last_synced_row,omitempty"`
	LastSyncedAt  *time.Time     `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Watermark returns the last fully processed row index for the given tab.
// Zero means nothing has been synced yet.
func (c *Campaign) Watermark(tabID string) int {
	if c.LastSyncedRow == nil {
		return 0
	}
	return c.LastSyncedRow[tabID]
}

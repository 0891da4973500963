package database

import (
	"context"
	"fmt"
	"strings"
)

// Schema statements. Text columns default to '' so the unique indexes below
// can distinguish "not provided" without NULL handling; JSON columns hold the
// verbatim source payload and the per-tab watermark map.
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS customers (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id SERIAL PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	external_lead_id VARCHAR(255) NOT NULL DEFAULT '',
	name VARCHAR(255) NOT NULL DEFAULT '',
	email VARCHAR(255) NOT NULL DEFAULT '',
	phone VARCHAR(50) NOT NULL DEFAULT '',
	phone_key VARCHAR(50) NOT NULL DEFAULT '',
	platform VARCHAR(50) NOT NULL DEFAULT 'facebook',
	campaign_name TEXT NOT NULL DEFAULT '',
	form_name TEXT NOT NULL DEFAULT '',
	lead_source TEXT NOT NULL DEFAULT '',
	status VARCHAR(50) NOT NULL DEFAULT 'new',
	assigned_to VARCHAR(255) NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	raw_data JSONB,
	custom_data JSONB,
	notes TEXT NOT NULL DEFAULT '',
	source_created_at TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_leads_email_campaign
	ON leads(customer_id, email, campaign_name)
	WHERE email <> '' AND campaign_name <> '';
CREATE UNIQUE INDEX IF NOT EXISTS uq_leads_external_id
	ON leads(customer_id, external_lead_id)
	WHERE external_lead_id <> '';
CREATE INDEX IF NOT EXISTS idx_leads_phone_key ON leads(customer_id, phone_key);
CREATE INDEX IF NOT EXISTS idx_leads_received_at ON leads(customer_id, received_at);

CREATE TABLE IF NOT EXISTS lead_activities (
	id SERIAL PRIMARY KEY,
	lead_id INTEGER NOT NULL REFERENCES leads(id),
	customer_id INTEGER NOT NULL,
	actor VARCHAR(255) NOT NULL,
	activity_type VARCHAR(100) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	previous_status VARCHAR(50) NOT NULL DEFAULT '',
	new_status VARCHAR(50) NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_lead ON lead_activities(lead_id, occurred_at);

CREATE TABLE IF NOT EXISTS campaigns (
	id SERIAL PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	campaign_name TEXT NOT NULL,
	sheet_id VARCHAR(255) NOT NULL DEFAULT '',
	sheet_url TEXT NOT NULL DEFAULT '',
	tab_id VARCHAR(64) NOT NULL DEFAULT '',
	column_mapping JSONB,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_synced_row JSONB,
	last_synced_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_sheet_id ON campaigns(sheet_id);
`

// Migrate applies the schema. Statements are idempotent so this runs on
// every startup, matching how the original managed its tables.
func (c *Client) Migrate(ctx context.Context) error {
	schema := schemaPostgres
	if c.driver == "sqlite3" {
		schema = sqliteSchema(schema)
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}

// sqliteSchema rewrites the Postgres DDL for the sqlite test database.
// Partial indexes and defaults carry over as-is.
func sqliteSchema(schema string) string {
	r := strings.NewReplacer(
		"SERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"TIMESTAMPTZ", "TIMESTAMP",
		"JSONB", "TEXT",
	)
	return r.Replace(schema)
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shmuelia/leadsmanager/pkg/models"
)

// LeadStore persists leads and their append-only activity trail
type LeadStore struct {
	db *sql.DB
}

const leadColumns = `id, customer_id, external_lead_id, name, email, phone, phone_key,
	platform, campaign_name, form_name, lead_source, status, assigned_to, priority,
	raw_data, custom_data, notes, source_created_at, received_at, updated_at`

// CreateWithActivity inserts a lead together with its initial activity in a
// single transaction, so a stored lead always has its "received" audit entry.
// A uniqueness-constraint violation rolls back and returns ErrDuplicateLead.
func (s *LeadStore) CreateWithActivity(ctx context.Context, lead *models.Lead, activity *models.LeadActivity) error {
	now := time.Now()
	if lead.ReceivedAt.IsZero() {
		lead.ReceivedAt = now
	}
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.StatusNew
	}

	rawData, err := marshalJSON(lead.RawData)
	if err != nil {
		return err
	}
	customData, err := marshalJSON(lead.CustomData)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lead insert: %w", err)
	}
	defer tx.Rollback()

	var sourceCreated any
	if lead.SourceCreated != nil {
		sourceCreated = *lead.SourceCreated
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO leads (customer_id, external_lead_id, name, email, phone, phone_key,
			platform, campaign_name, form_name, lead_source, status, assigned_to, priority,
			raw_data, custom_data, notes, source_created_at, received_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		lead.CustomerID, lead.ExternalLeadID, lead.Name, lead.Email, lead.Phone, lead.PhoneKey,
		lead.Platform, lead.CampaignName, lead.FormName, lead.LeadSource, lead.Status,
		lead.AssignedTo, lead.Priority, rawData, customData, lead.Notes,
		sourceCreated, lead.ReceivedAt, lead.UpdatedAt,
	).Scan(&lead.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLead
		}
		return fmt.Errorf("insert lead: %w", err)
	}

	activity.LeadID = lead.ID
	activity.CustomerID = lead.CustomerID
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = now
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		return err
	}

	return tx.Commit()
}

// FindDuplicate looks for an existing lead matching the candidate within the
// customer scope. Checked in order: external lead id, (email, campaign_name)
// pair, normalized phone. First match wins.
func (s *LeadStore) FindDuplicate(ctx context.Context, customerID int, email, phoneKey, campaignName, externalID string) (int, bool, error) {
	type probe struct {
		query string
		args  []any
	}
	var probes []probe

	if externalID != "" {
		probes = append(probes, probe{
			`SELECT id FROM leads WHERE customer_id = $1 AND external_lead_id = $2 LIMIT 1`,
			[]any{customerID, externalID},
		})
	}
	if email != "" && campaignName != "" {
		probes = append(probes, probe{
			`SELECT id FROM leads WHERE customer_id = $1 AND email = $2 AND campaign_name = $3 LIMIT 1`,
			[]any{customerID, email, campaignName},
		})
	}
	if phoneKey != "" {
		probes = append(probes, probe{
			`SELECT id FROM leads WHERE customer_id = $1 AND phone_key = $2 LIMIT 1`,
			[]any{customerID, phoneKey},
		})
	}

	for _, p := range probes {
		var id int
		err := s.db.QueryRowContext(ctx, p.query, p.args...).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("duplicate lookup: %w", err)
		}
		return id, true, nil
	}
	return 0, false, nil
}

// GetByID fetches one lead scoped to a customer
func (s *LeadStore) GetByID(ctx context.Context, customerID, id int) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE customer_id = $1 AND id = $2`,
		customerID, id)
	return scanLead(row)
}

// List returns leads for a customer, newest first, with the total count
func (s *LeadStore) List(ctx context.Context, customerID, limit, offset int) ([]*models.Lead, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE customer_id = $1
		 ORDER BY received_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []*models.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	return leads, total, nil
}

// ListIncomplete returns leads missing at least one canonical field, for the
// repair pass over raw payloads
func (s *LeadStore) ListIncomplete(ctx context.Context, customerID int) ([]*models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE customer_id = $1 AND (name = '' OR phone = '' OR email = '')
		 ORDER BY id`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list incomplete leads: %w", err)
	}
	defer rows.Close()

	leads := []*models.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// UpdateFields writes repaired canonical fields back to a lead
func (s *LeadStore) UpdateFields(ctx context.Context, lead *models.Lead) error {
	customData, err := marshalJSON(lead.CustomData)
	if err != nil {
		return err
	}
	lead.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET name = $1, email = $2, phone = $3, phone_key = $4, campaign_name = $5,
			custom_data = $6, updated_at = $7
		WHERE customer_id = $8 AND id = $9`,
		lead.Name, lead.Email, lead.Phone, lead.PhoneKey, lead.CampaignName,
		customData, lead.UpdatedAt, lead.CustomerID, lead.ID)
	if err != nil {
		return fmt.Errorf("update lead fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangeStatus updates a lead's status and records the status_change
// activity in the same transaction. A status change without its audit entry
// is invalid, so neither write happens without the other.
func (s *LeadStore) ChangeStatus(ctx context.Context, customerID, leadID int, newStatus models.LeadStatus, actor, reason string) (*models.LeadActivity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status change: %w", err)
	}
	defer tx.Rollback()

	var previous models.LeadStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM leads WHERE customer_id = $1 AND id = $2`,
		customerID, leadID).Scan(&previous)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lead status: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE customer_id = $3 AND id = $4`,
		newStatus, now, customerID, leadID); err != nil {
		return nil, fmt.Errorf("update lead status: %w", err)
	}

	activity := &models.LeadActivity{
		LeadID:         leadID,
		CustomerID:     customerID,
		Actor:          actor,
		ActivityType:   models.ActivityStatusChange,
		Description:    reason,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		OccurredAt:     now,
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return activity, nil
}

// AddActivity appends a standalone activity entry
func (s *LeadStore) AddActivity(ctx context.Context, activity *models.LeadActivity) error {
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now()
	}
	return insertActivityDB(ctx, s.db, activity)
}

// ListActivities returns a lead's activity trail, newest first
func (s *LeadStore) ListActivities(ctx context.Context, customerID, leadID int) ([]*models.LeadActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, customer_id, actor, activity_type, description,
			previous_status, new_status, occurred_at
		FROM lead_activities
		WHERE customer_id = $1 AND lead_id = $2
		ORDER BY occurred_at DESC, id DESC`,
		customerID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := []*models.LeadActivity{}
	for rows.Next() {
		var a models.LeadActivity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.CustomerID, &a.Actor, &a.ActivityType,
			&a.Description, &a.PreviousStatus, &a.NewStatus, &a.OccurredAt); err != nil {
			return nil, err
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// CountByCustomer returns the number of leads a customer holds
func (s *LeadStore) CountByCustomer(ctx context.Context, customerID int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE customer_id = $1`, customerID).Scan(&total)
	return total, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertActivity(ctx context.Context, tx *sql.Tx, a *models.LeadActivity) error {
	return insertActivityDB(ctx, tx, a)
}

func insertActivityDB(ctx context.Context, db execer, a *models.LeadActivity) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO lead_activities (lead_id, customer_id, actor, activity_type,
			description, previous_status, new_status, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.LeadID, a.CustomerID, a.Actor, a.ActivityType, a.Description,
		a.PreviousStatus, a.NewStatus, a.OccurredAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var rawData, customData []byte
	var sourceCreated sql.NullTime

	err := row.Scan(&l.ID, &l.CustomerID, &l.ExternalLeadID, &l.Name, &l.Email, &l.Phone,
		&l.PhoneKey, &l.Platform, &l.CampaignName, &l.FormName, &l.LeadSource, &l.Status,
		&l.AssignedTo, &l.Priority, &rawData, &customData, &l.Notes,
		&sourceCreated, &l.ReceivedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}

	if err := unmarshalJSON(rawData, &l.RawData); err != nil {
		return nil, fmt.Errorf("decode raw_data: %w", err)
	}
	if err := unmarshalJSON(customData, &l.CustomData); err != nil {
		return nil, fmt.Errorf("decode custom_data: %w", err)
	}
	if sourceCreated.Valid {
		t := sourceCreated.Time
		l.SourceCreated = &t
	}
	return &l, nil
}

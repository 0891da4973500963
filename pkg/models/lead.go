package models

import "time"

// LeadStatus is the lifecycle state of a lead
type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusQualified LeadStatus = "qualified"
	StatusConverted LeadStatus = "converted"
	StatusClosed    LeadStatus = "closed"
)

// ValidStatus reports whether s is a known lead status
func ValidStatus(s LeadStatus) bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusClosed:
		return true
	}
	return false
}

// Lead is a contact record scoped to one customer (tenant).
// RawData preserves the complete original payload verbatim so that fields
// missed by normalization can be recovered later without reprocessing.
type Lead struct {
	ID             int            `json:"id"`
	CustomerID     int            `json:"customer_id"`
	ExternalLeadID string         `json:"external_lead_id,omitempty"`
	Name           string         `json:"name"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	PhoneKey       string         `json:"-"`
	Platform       string         `json:"platform"`
	CampaignName   string         `json:"campaign_name,omitempty"`
	FormName       string         `json:"form_name,omitempty"`
	LeadSource     string         `json:"lead_source,omitempty"`
	Status         LeadStatus     `json:"status"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	Priority       int            `json:"priority"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	SourceCreated  *time.Time     `json:"source_created_at,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ActivityType categorizes a lead activity entry
type ActivityType string

const (
	ActivityReceived     ActivityType = "received"
	ActivityStatusChange ActivityType = "status_change"
	ActivityAssignment   ActivityType = "assignment"
	ActivityNote         ActivityType = "note"
	ActivityCall         ActivityType = "call"
	ActivityMessage      ActivityType = "message"
)

// LeadActivity is an append-only audit entry tied to a lead.
// Entries are created once and never updated or deleted.
type LeadActivity struct {
	ID             int          `json:"id"`
	LeadID         int          `json:"lead_id"`
	CustomerID     int          `json:"customer_id"`
	Actor          string       `json:"actor"`
	ActivityType   ActivityType `json:"activity_type"`
	Description    string       `json:"description"`
	PreviousStatus LeadStatus   `json:"previous_status,omitempty"`
	NewStatus      LeadStatus   `json:"new_status,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// Customer is a tenant. All leads, campaigns and activities belong to
// exactly one customer and every query is scoped by it.
type Customer struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

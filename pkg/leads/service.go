package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/shmuelia/leadsmanager/pkg/fields"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/phone"
	"github.com/shmuelia/leadsmanager/pkg/store"
)

// LeadRepository is the persistence surface the service needs for leads
type LeadRepository interface {
	CreateWithActivity(ctx context.Context, lead *models.Lead, activity *models.LeadActivity) error
	FindDuplicate(ctx context.Context, customerID int, email, phoneKey, campaignName, externalID string) (int, bool, error)
	GetByID(ctx context.Context, customerID, id int) (*models.Lead, error)
	List(ctx context.Context, customerID, limit, offset int) ([]*models.Lead, int, error)
	ListIncomplete(ctx context.Context, customerID int) ([]*models.Lead, error)
	UpdateFields(ctx context.Context, lead *models.Lead) error
	ChangeStatus(ctx context.Context, customerID, leadID int, newStatus models.LeadStatus, actor, reason string) (*models.LeadActivity, error)
	AddActivity(ctx context.Context, activity *models.LeadActivity) error
	ListActivities(ctx context.Context, customerID, leadID int) ([]*models.LeadActivity, error)
	CountByCustomer(ctx context.Context, customerID int) (int, error)
}

// CustomerRepository answers tenant existence checks
type CustomerRepository interface {
	Exists(ctx context.Context, id int) (bool, error)
}

// Service handles lead ingestion and lifecycle business logic
type Service struct {
	leads     LeadRepository
	customers CustomerRepository
	region    string
}

// NewService creates a new lead service. region is the default phone region
// for E.164 repair formatting.
func NewService(leads LeadRepository, customers CustomerRepository, region string) *Service {
	return &Service{
		leads:     leads,
		customers: customers,
		region:    region,
	}
}

// ValidationPolicy selects how strict ingestion is about missing fields.
// Webhook deliveries keep partial leads; sheet rows were already promised
// complete by the sync engine, so partial data there means a broken mapping.
type ValidationPolicy int

const (
	// PolicyWebhook accepts partial data; only an empty payload is rejected
	PolicyWebhook ValidationPolicy = iota
	// PolicySheet requires name, phone and email to all be present
	PolicySheet
)

// Outcome classifies the result of one ingestion attempt
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Rejection reason codes. Rejections are final; the caller must not retry
// them. Storage failures surface as errors instead and are retryable.
const (
	ReasonInvalidTenant   = "invalid_tenant"
	ReasonEmptyPayload    = "empty_payload"
	ReasonMissingRequired = "missing_required_field"
	ReasonInvalidStatus   = "invalid_status"
)

// Result is the outcome of ingesting one payload
type Result struct {
	Outcome        Outcome `json:"outcome"`
	LeadID         int     `json:"lead_id,omitempty"`
	ExistingLeadID int     `json:"existing_lead_id,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// IngestInput carries one incoming lead payload
type IngestInput struct {
	CustomerID     int
	Platform       string
	Payload        map[string]any
	ExternalLeadID string // overrides the id extracted from the payload
	Actor          string // defaults to "system"
	Policy         ValidationPolicy
}

// Ingest turns one incoming webhook payload into a persisted lead plus its
// "received" activity, or declines it as a duplicate or rejection.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*Result, error) {
	if len(in.Payload) == 0 {
		return &Result{Outcome: OutcomeRejected, Reason: ReasonEmptyPayload}, nil
	}
	normalized := fields.Normalize(in.Payload)
	return s.ingest(ctx, in, normalized)
}

// IngestNormalized ingests a payload whose canonical fields were already
// extracted, e.g. by a sheet column mapping. The raw payload is still stored
// verbatim.
func (s *Service) IngestNormalized(ctx context.Context, in IngestInput, normalized fields.Normalized) (*Result, error) {
	return s.ingest(ctx, in, normalized)
}

func (s *Service) ingest(ctx context.Context, in IngestInput, normalized fields.Normalized) (*Result, error) {
	if in.CustomerID <= 0 {
		return &Result{Outcome: OutcomeRejected, Reason: ReasonInvalidTenant}, nil
	}
	exists, err := s.customers.Exists(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("tenant check: %w", err)
	}
	if !exists {
		return &Result{Outcome: OutcomeRejected, Reason: ReasonInvalidTenant}, nil
	}

	if in.Policy == PolicySheet {
		if normalized.Name == "" || normalized.Phone == "" || normalized.Email == "" {
			return &Result{Outcome: OutcomeRejected, Reason: ReasonMissingRequired}, nil
		}
	}

	externalID := in.ExternalLeadID
	if externalID == "" {
		externalID = normalized.ExternalLeadID
	}

	// Fast-path duplicate check. The storage uniqueness constraints remain
	// the authoritative guard against concurrent ingestions.
	existingID, found, err := s.CheckDuplicate(ctx, in.CustomerID, normalized.Email, normalized.Phone, normalized.CampaignName, externalID)
	if err != nil {
		return nil, err
	}
	if found {
		return &Result{Outcome: OutcomeDuplicate, ExistingLeadID: existingID}, nil
	}

	platform := in.Platform
	if platform == "" {
		platform = normalized.Platform
	}
	if platform == "" {
		platform = "facebook"
	}
	actor := in.Actor
	if actor == "" {
		actor = "system"
	}

	lead := &models.Lead{
		CustomerID:     in.CustomerID,
		ExternalLeadID: externalID,
		Name:           normalized.Name,
		Email:          normalized.Email,
		Phone:          normalized.Phone,
		PhoneKey:       phone.CanonicalKey(normalized.Phone, s.region),
		Platform:       platform,
		CampaignName:   normalized.CampaignName,
		FormName:       normalized.FormName,
		LeadSource:     normalized.LeadSource,
		Status:         models.StatusNew,
		RawData:        in.Payload,
		CustomData:     normalized.CustomFields,
		SourceCreated:  normalized.SourceCreated,
	}
	activity := &models.LeadActivity{
		Actor:        actor,
		ActivityType: models.ActivityReceived,
		Description:  fmt.Sprintf("Lead received from %s", platform),
	}

	err = s.leads.CreateWithActivity(ctx, lead, activity)
	if errors.Is(err, store.ErrDuplicateLead) {
		// Lost the check-then-insert race: another ingestion committed the
		// same lead between our check and insert. Report it as the duplicate
		// it is.
		existingID, _, findErr := s.leads.FindDuplicate(ctx, in.CustomerID, lead.Email, lead.PhoneKey, lead.CampaignName, lead.ExternalLeadID)
		if findErr != nil {
			return nil, findErr
		}
		return &Result{Outcome: OutcomeDuplicate, ExistingLeadID: existingID}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Result{Outcome: OutcomeCreated, LeadID: lead.ID}, nil
}

// CheckDuplicate decides whether a candidate matches an existing lead in the
// customer scope. Phones are compared by canonical key, so national and
// E.164 spellings of one number match; the stored formatting stays
// untouched. Read-only.
func (s *Service) CheckDuplicate(ctx context.Context, customerID int, email, phoneNumber, campaignName, externalID string) (int, bool, error) {
	return s.leads.FindDuplicate(ctx, customerID, email, phone.CanonicalKey(phoneNumber, s.region), campaignName, externalID)
}

// UpdateStatus transitions a lead's status, recording exactly one
// status_change activity with the given reason.
func (s *Service) UpdateStatus(ctx context.Context, customerID, leadID int, status models.LeadStatus, actor, reason string) (*models.LeadActivity, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%s: %q", ReasonInvalidStatus, status)
	}
	if reason == "" {
		return nil, fmt.Errorf("status change requires a reason")
	}
	return s.leads.ChangeStatus(ctx, customerID, leadID, status, actor, reason)
}

// AddActivity appends an activity to a lead. When the request carries a new
// status, the transition goes through UpdateStatus so the status-change
// audit entry is never skipped.
func (s *Service) AddActivity(ctx context.Context, customerID, leadID int, req models.AddActivityRequest) (*models.LeadActivity, error) {
	lead, err := s.leads.GetByID(ctx, customerID, leadID)
	if err != nil {
		return nil, err
	}

	activity := &models.LeadActivity{
		LeadID:       leadID,
		CustomerID:   customerID,
		Actor:        req.Actor,
		ActivityType: models.ActivityType(req.ActivityType),
		Description:  req.Description,
	}
	if err := s.leads.AddActivity(ctx, activity); err != nil {
		return nil, err
	}

	if req.NewStatus != "" && models.LeadStatus(req.NewStatus) != lead.Status {
		if _, err := s.UpdateStatus(ctx, customerID, leadID, models.LeadStatus(req.NewStatus), req.Actor, req.Description); err != nil {
			return nil, err
		}
	}
	return activity, nil
}

// Get fetches a lead with its activity trail
func (s *Service) Get(ctx context.Context, customerID, leadID int) (*models.Lead, []*models.LeadActivity, error) {
	lead, err := s.leads.GetByID(ctx, customerID, leadID)
	if err != nil {
		return nil, nil, err
	}
	activities, err := s.leads.ListActivities(ctx, customerID, leadID)
	if err != nil {
		return nil, nil, err
	}
	return lead, activities, nil
}

// List returns a customer's leads, newest first
func (s *Service) List(ctx context.Context, customerID, limit, offset int) ([]*models.Lead, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.leads.List(ctx, customerID, limit, offset)
}

// Count returns how many leads a customer holds
func (s *Service) Count(ctx context.Context, customerID int) (int, error) {
	return s.leads.CountByCustomer(ctx, customerID)
}

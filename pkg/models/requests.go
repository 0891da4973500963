package models

// ErrorResponse is the standard JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UpdateStatusRequest changes a lead's status.
// Every status change must carry an actor and a reason; the reason becomes
// the description of the recorded status_change activity.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// AddActivityRequest appends an activity to a lead
type AddActivityRequest struct {
	Actor        string `json:"actor" validate:"required"`
	ActivityType string `json:"activity_type" validate:"required,oneof=received status_change assignment note call message"`
	Description  string `json:"description" validate:"required"`
	NewStatus    string `json:"new_status,omitempty"`
}

// CreateCampaignRequest registers a spreadsheet tab as a lead source
type CreateCampaignRequest struct {
	CustomerID    int           `json:"customer_id" validate:"required,gt=0"`
	Name          string        `json:"campaign_name" validate:"required"`
	SheetURL      string        `json:"sheet_url" validate:"required,url"`
	SheetID       string        `json:"sheet_id,omitempty"`
	TabID         string        `json:"tab_id,omitempty"`
	ColumnMapping ColumnMapping `json:"column_mapping"`
	Active        *bool         `json:"active,omitempty"`
}

// UpdateCampaignRequest updates campaign configuration. Nil fields are left
// unchanged.
type UpdateCampaignRequest struct {
	Name          *string        `json:"campaign_name,omitempty"`
	SheetURL      *string        `json:"sheet_url,omitempty" validate:"omitempty,url"`
	TabID         *string        `json:"tab_id,omitempty"`
	ColumnMapping *ColumnMapping `json:"column_mapping,omitempty"`
	Active        *bool          `json:"active,omitempty"`
}

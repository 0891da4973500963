package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/shmuelia/leadsmanager/pkg/api/errors"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/store"
)

// CampaignHandler manages sheet campaign configuration
type CampaignHandler struct {
	campaigns *store.CampaignStore
	customers *store.CustomerStore
	validator *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns *store.CampaignStore, customers *store.CustomerStore) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		customers: customers,
		validator: validator.New(),
	}
}

// Create registers a spreadsheet tab as a lead source
func (h *CampaignHandler) Create(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	var req models.CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	exists, err := h.customers.Exists(ctx, req.CustomerID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	if !exists {
		return apierrors.NotFoundError(c, "customer")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	campaign := &models.Campaign{
		CustomerID:    req.CustomerID,
		Name:          req.Name,
		SheetID:       req.SheetID,
		SheetURL:      req.SheetURL,
		TabID:         req.TabID,
		ColumnMapping: req.ColumnMapping,
		Active:        active,
	}
	if err := h.campaigns.Create(ctx, campaign); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusCreated, campaign)
}

// Update changes campaign configuration; omitted fields are left as they are
func (h *CampaignHandler) Update(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	campaignID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	var req models.UpdateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	campaign, err := h.campaigns.GetByID(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "campaign")
	}
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.SheetURL != nil {
		campaign.SheetURL = *req.SheetURL
	}
	if req.TabID != nil {
		campaign.TabID = *req.TabID
	}
	if req.ColumnMapping != nil {
		campaign.ColumnMapping = *req.ColumnMapping
	}
	if req.Active != nil {
		campaign.Active = *req.Active
	}

	if err := h.campaigns.Update(ctx, campaign); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, campaign)
}

// List returns a customer's campaigns
func (h *CampaignHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	campaigns, err := h.campaigns.List(ctx, customerID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"campaigns": campaigns})
}

// ResetWatermark clears a tab's sync position so the next run re-reads the
// whole tab. Existing leads then classify as duplicates instead of copies.
func (h *CampaignHandler) ResetWatermark(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	campaignID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	campaign, err := h.campaigns.GetByID(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "campaign")
	}
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	tabID := c.QueryParam("tab_id")
	if tabID == "" {
		tabID = campaign.TabID
	}

	if err := h.campaigns.ResetWatermark(ctx, campaignID, tabID); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"campaign_id": campaignID,
		"tab_id":      tabID,
		"reset":       true,
	})
}

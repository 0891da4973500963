package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/shmuelia/leadsmanager/pkg/api/errors"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/metrics"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/store"
)

// LeadHandler handles lead-related HTTP requests
type LeadHandler struct {
	leadService *leads.Service
	metrics     *metrics.Metrics
	validator   *validator.Validate
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadService *leads.Service, m *metrics.Metrics) *LeadHandler {
	return &LeadHandler{
		leadService: leadService,
		metrics:     m,
		validator:   validator.New(),
	}
}

// List returns a page of a customer's leads, newest first
func (h *LeadHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	items, total, err := h.leadService.List(ctx, customerID, limit, offset)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"leads": items,
		"total": total,
	})
}

// Get returns one lead with its full activity trail
func (h *LeadHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}
	leadID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	lead, activities, err := h.leadService.Get(ctx, customerID, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "lead")
	}
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"lead":       lead,
		"activities": activities,
	})
}

// UpdateStatus transitions a lead to a new status
func (h *LeadHandler) UpdateStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}
	leadID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	activity, err := h.leadService.UpdateStatus(ctx, customerID, leadID, models.LeadStatus(req.Status), req.Actor, req.Reason)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "lead")
	}
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	return c.JSON(http.StatusOK, activity)
}

// AddActivity appends an activity to a lead's trail
func (h *LeadHandler) AddActivity(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}
	leadID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	var req models.AddActivityRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	activity, err := h.leadService.AddActivity(ctx, customerID, leadID, req)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "lead")
	}
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	return c.JSON(http.StatusCreated, activity)
}

// Repair backfills missing lead fields from their stored raw payloads
func (h *LeadHandler) Repair(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	report, err := h.leadService.Repair(ctx, customerID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	h.metrics.RecordLeadsRepaired(report.FieldsRepaired)
	return c.JSON(http.StatusOK, report)
}

// pathInt parses a positive integer path parameter
func pathInt(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + name + " id")
	}
	return v, nil
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/shmuelia/leadsmanager/pkg/api/errors"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/store"
)

// CustomerHandler manages tenant records
type CustomerHandler struct {
	customers *store.CustomerStore
	validator *validator.Validate
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customers *store.CustomerStore) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		validator: validator.New(),
	}
}

type createCustomerRequest struct {
	Name string `json:"name" validate:"required"`
}

// Create registers a new customer
func (h *CustomerHandler) Create(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	var req createCustomerRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	customer := &models.Customer{Name: req.Name, Active: true}
	if err := h.customers.Create(ctx, customer); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusCreated, customer)
}

// List returns all customers
func (h *CustomerHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customers, err := h.customers.List(ctx)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"customers": customers})
}

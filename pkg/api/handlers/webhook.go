package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/logger"
	"github.com/shmuelia/leadsmanager/pkg/metrics"
	"github.com/shmuelia/leadsmanager/pkg/models"
)

// WebhookHandler receives lead payloads pushed by ad platforms
type WebhookHandler struct {
	leadService *leads.Service
	metrics     *metrics.Metrics
	log         logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(leadService *leads.Service, m *metrics.Metrics, log logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookHandler{
		leadService: leadService,
		metrics:     m,
		log:         log,
	}
}

// Receive ingests one pushed lead payload for a customer. Platforms retry on
// non-2xx responses, so duplicates and field-level rejections still answer
// 200 with the outcome in the body; only malformed requests and unknown
// customers are refused.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	customerID, err := strconv.Atoi(c.Param("customer"))
	if err != nil || customerID <= 0 {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_customer",
			Message: "Customer id must be a positive integer",
		})
	}

	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be a JSON object",
		})
	}

	result, err := h.leadService.Ingest(ctx, leads.IngestInput{
		CustomerID: customerID,
		Platform:   c.QueryParam("platform"),
		Payload:    payload,
		Policy:     leads.PolicyWebhook,
	})
	if err != nil {
		h.log.Error("❌ Webhook ingestion failed", "customer_id", customerID, "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to process lead",
		})
	}

	h.metrics.RecordIngestion("webhook", string(result.Outcome))

	if result.Outcome == leads.OutcomeRejected && result.Reason == leads.ReasonInvalidTenant {
		return c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "unknown_customer",
			Message: "No active customer with this id",
		})
	}

	status := http.StatusOK
	if result.Outcome == leads.OutcomeCreated {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

// Verify answers platform webhook verification probes. Facebook sends a
// hub.challenge that must be echoed back verbatim.
func (h *WebhookHandler) Verify(c echo.Context) error {
	if challenge := c.QueryParam("hub.challenge"); challenge != "" {
		return c.String(http.StatusOK, challenge)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

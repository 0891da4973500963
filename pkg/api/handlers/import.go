package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/shmuelia/leadsmanager/pkg/api/errors"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/metrics"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/sheets"
)

// ImportHandler ingests leads from uploaded Excel workbooks
type ImportHandler struct {
	leadService *leads.Service
	metrics     *metrics.Metrics
}

// NewImportHandler creates a new import handler
func NewImportHandler(leadService *leads.Service, m *metrics.Metrics) *ImportHandler {
	return &ImportHandler{
		leadService: leadService,
		metrics:     m,
	}
}

// ImportResult summarizes one workbook import
type ImportResult struct {
	TotalRows  int        `json:"total_rows"`
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Rejected   int        `json:"rejected"`
	Errors     []RowError `json:"errors,omitempty"`
}

// RowError points at one row that could not be ingested
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportXLSX ingests the rows of an uploaded workbook for a customer. Column
// headers go through the same key normalization as webhook payloads, so
// Hebrew and prefixed headers resolve without per-file configuration.
func (h *ImportHandler) ImportXLSX(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()

	customerID, err := pathInt(c, "customer")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Multipart field 'file' with an .xlsx workbook is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apierrors.InternalError(c, err)
	}
	defer file.Close()

	rows, err := sheets.ParseXLSX(file, c.FormValue("sheet"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_workbook",
			Message: "Could not read the uploaded workbook",
		})
	}

	result := &ImportResult{}
	for _, row := range rows {
		if row.Empty() {
			continue
		}
		result.TotalRows++

		payload := make(map[string]any, len(row.Cells))
		for k, v := range row.Cells {
			payload[k] = v
		}

		outcome, err := h.leadService.Ingest(ctx, leads.IngestInput{
			CustomerID: customerID,
			Platform:   "xlsx_import",
			Payload:    payload,
			Policy:     leads.PolicyWebhook,
		})
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row.Index, Message: err.Error()})
			continue
		}

		h.metrics.RecordIngestion("import", string(outcome.Outcome))
		switch outcome.Outcome {
		case leads.OutcomeCreated:
			result.Created++
		case leads.OutcomeDuplicate:
			result.Duplicates++
		case leads.OutcomeRejected:
			result.Rejected++
			result.Errors = append(result.Errors, RowError{Row: row.Index, Message: outcome.Reason})
		}
	}

	return c.JSON(http.StatusOK, result)
}

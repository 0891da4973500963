package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/shmuelia/leadsmanager/pkg/api/errors"
	"github.com/shmuelia/leadsmanager/pkg/store"
	"github.com/shmuelia/leadsmanager/pkg/sync"
)

// SyncHandler triggers sheet sync runs over HTTP
type SyncHandler struct {
	orchestrator *sync.Orchestrator
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(orchestrator *sync.Orchestrator) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// SyncAll runs a sync pass over every active campaign. With ?preview=true
// rows are only classified; nothing is written and watermarks stay put.
func (h *SyncHandler) SyncAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Minute)
	defer cancel()

	preview := c.QueryParam("preview") == "true"

	report, err := h.orchestrator.SyncAll(ctx, preview)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, report)
}

// SyncCampaign runs one campaign by id, even if it is inactive
func (h *SyncHandler) SyncCampaign(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Minute)
	defer cancel()

	campaignID, err := pathInt(c, "id")
	if err != nil {
		return apierrors.ValidationError(c, err)
	}
	preview := c.QueryParam("preview") == "true"

	report, err := h.orchestrator.SyncCampaign(ctx, campaignID, preview)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError(c, "campaign")
	}
	if errors.Is(err, sync.ErrLocked) {
		return apierrors.ConflictError(c, "Sync already running for this campaign")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, report)
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/siteplan/internal/errors"
	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/middleware"
	"github.com/stwalsh4118/siteplan/internal/services"
	"github.com/stwalsh4118/siteplan/internal/store"
)

// SyncHandler is the operator surface over ingestion: staged cycles held
// back by an anomaly, their confirmation, and scope status.
type SyncHandler struct {
	service services.SyncService
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(service services.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

// StagedResponse lists staged cycles.
type StagedResponse struct {
	Staged []store.StagedCycle `json:"staged"`
	Count  int                 `json:"count"`
}

// StatusResponse lists promoted scopes.
type StatusResponse struct {
	Scopes []services.ScopeStatus `json:"scopes"`
}

// PromotionResponse describes a confirmed cycle.
type PromotionResponse struct {
	PromotedAt time.Time `json:"promoted_at"`
	CycleID    string    `json:"cycle_id"`
	Region     string    `json:"region"`
	Layer      string    `json:"layer"`
	Version    int64     `json:"version"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Live       int       `json:"live"`
}

// Staged handles GET /api/v1/sync/staged.
func (h *SyncHandler) Staged(c *gin.Context) {
	staged := h.service.Staged()
	c.JSON(http.StatusOK, StagedResponse{Staged: staged, Count: len(staged)})
}

// Status handles GET /api/v1/sync/status.
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Scopes: h.service.Status()})
}

// Confirm handles POST /api/v1/sync/staged/:region/:layer/confirm. The
// optional cycle_id query parameter guards against confirming a cycle that
// replaced the one the operator reviewed.
func (h *SyncHandler) Confirm(c *gin.Context) {
	region, layer, cycleID := c.Param("region"), c.Param("layer"), c.Query("cycle_id")

	p, err := h.service.Confirm(c.Request.Context(), region, layer, cycleID)
	if err != nil {
		writeSyncError(c, err)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Operator confirmed staged cycle", map[string]interface{}{
			"scope":    p.Scope.String(),
			"cycle_id": p.CycleID,
			"version":  p.Version,
		})
	}
	c.JSON(http.StatusOK, PromotionResponse{
		PromotedAt: p.PromotedAt,
		CycleID:    p.CycleID,
		Region:     p.Scope.Region,
		Layer:      string(p.Scope.Layer),
		Version:    p.Version,
		Inserted:   p.Inserted,
		Updated:    p.Updated,
		Deleted:    p.Deleted,
		Live:       p.LiveCount,
	})
}

// Discard handles DELETE /api/v1/sync/staged/:region/:layer.
func (h *SyncHandler) Discard(c *gin.Context) {
	region, layer, cycleID := c.Param("region"), c.Param("layer"), c.Query("cycle_id")
	if err := h.service.Discard(region, layer, cycleID); err != nil {
		writeSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discarded": true})
}

// Run handles POST /api/v1/sync/run/:region/:layer. A cycle held back by an
// anomaly answers 409 SYNC_ANOMALY with its report.
func (h *SyncHandler) Run(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context(), c.Param("region"), c.Param("layer"))
	if err != nil {
		var anomaly *ingest.AnomalyError
		if errors.As(err, &anomaly) {
			apierrors.Conflict(c, apierrors.ErrSyncAnomaly, "Sync staged for confirmation", map[string]interface{}{
				"cycle_id":  anomaly.CycleID,
				"anomalies": anomaly.Anomalies,
				"report":    report,
			})
			return
		}
		writeSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func writeSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidScope):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, store.ErrNoStagedCycle):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, store.ErrScopeBusy), errors.Is(err, store.ErrStaleStage), errors.Is(err, services.ErrNoSource):
		apierrors.Conflict(c, apierrors.ErrConflict, err.Error(), nil)
	default:
		apierrors.InternalServerError(c, "Sync operation failed", err)
	}
}

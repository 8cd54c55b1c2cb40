package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/siteplan/internal/errors"
	"github.com/stwalsh4118/siteplan/internal/middleware"
	"github.com/stwalsh4118/siteplan/internal/resolver"
	"github.com/stwalsh4118/siteplan/internal/services"
)

// ParcelHandler serves the parcel read operations.
type ParcelHandler struct {
	service services.BuildabilityService
}

// NewParcelHandler creates a new ParcelHandler instance.
func NewParcelHandler(service services.BuildabilityService) *ParcelHandler {
	return &ParcelHandler{
		service: service,
	}
}

// ContextRequest represents the query parameters for the context endpoint.
// lot_plan keys contain a slash, so they travel in the query string.
type ContextRequest struct {
	LotPlan string `form:"lot_plan" binding:"required"`
	Fresh   bool   `form:"fresh"`
}

// EnvelopeRequest represents the query parameters for the envelope endpoint.
type EnvelopeRequest struct {
	FrontageBearing *float64 `form:"frontage_bearing"`
	LotPlan         string   `form:"lot_plan" binding:"required"`
	Fresh           bool     `form:"fresh"`
}

// Context handles GET /api/v1/parcels/context.
func (h *ParcelHandler) Context(c *gin.Context) {
	var req ContextRequest
	if !bindQuery(c, &req) {
		return
	}

	res, err := h.service.ResolveContext(c.Request.Context(), req.LotPlan, services.Options{Fresh: req.Fresh})
	if err != nil {
		writeResolveError(c, req.LotPlan, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Envelope handles GET /api/v1/parcels/envelope. A zone without a planning
// rule is still a 200; the rules block says why no envelope was computed.
func (h *ParcelHandler) Envelope(c *gin.Context) {
	var req EnvelopeRequest
	if !bindQuery(c, &req) {
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Debug("Processing envelope request", map[string]interface{}{
			"lot_plan":         req.LotPlan,
			"fresh":            req.Fresh,
			"frontage_bearing": req.FrontageBearing,
		})
	}

	res, err := h.service.Envelope(c.Request.Context(), req.LotPlan, services.EnvelopeOptions{
		Options:         services.Options{Fresh: req.Fresh},
		FrontageBearing: req.FrontageBearing,
	})
	if err != nil {
		writeResolveError(c, req.LotPlan, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindQuery binds query parameters and writes the error response on failure.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return false
	}
	return true
}

// writeResolveError maps resolution failures onto the error envelope.
func writeResolveError(c *gin.Context, lotPlan string, err error) {
	var ambiguous *resolver.AmbiguousZoneError
	switch {
	case errors.Is(err, services.ErrInvalidLotPlan), errors.Is(err, services.ErrInvalidFrontage):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, resolver.ErrParcelNotFound):
		apierrors.NotFound(c, "No parcel found for lot_plan "+lotPlan)
	case errors.Is(err, resolver.ErrUnzonedParcel):
		apierrors.UnprocessableEntity(c, apierrors.ErrUnzonedParcel, "Parcel is not covered by any zone", map[string]interface{}{
			"lot_plan": lotPlan,
		})
	case errors.As(err, &ambiguous):
		apierrors.Conflict(c, apierrors.ErrAmbiguousZone, "No zone covers a clear majority of the parcel", map[string]interface{}{
			"lot_plan":   ambiguous.LotPlan,
			"threshold":  ambiguous.Threshold,
			"candidates": ambiguous.Candidates,
		})
	default:
		apierrors.InternalServerError(c, "Failed to resolve parcel", err)
	}
}

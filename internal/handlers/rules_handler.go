package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/siteplan/internal/errors"
	"github.com/stwalsh4118/siteplan/internal/services"
)

// RulesHandler serves planning rule lookups.
type RulesHandler struct {
	service services.BuildabilityService
}

// NewRulesHandler creates a new RulesHandler instance.
func NewRulesHandler(service services.BuildabilityService) *RulesHandler {
	return &RulesHandler{service: service}
}

// RulesRequest represents the query parameters for the rules endpoint.
type RulesRequest struct {
	Zone   string `form:"zone" binding:"required"`
	Region string `form:"region" binding:"required"`
}

// Get handles GET /api/v1/rules. An unknown zone answers 200 with
// status "unavailable".
func (h *RulesHandler) Get(c *gin.Context) {
	var req RulesRequest
	if !bindQuery(c, &req) {
		return
	}

	res, err := h.service.AggregateRules(c.Request.Context(), req.Zone, req.Region)
	if err != nil {
		if errors.Is(err, services.ErrInvalidZone) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to load planning rules", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

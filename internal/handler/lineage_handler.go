package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stageops/promotion-api/internal/dto"
	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
	"github.com/stageops/promotion-api/pkg/response"
)

type lineageService interface {
	DocumentLineage(ctx context.Context, collection, documentID string, actor *models.JWTClaims) ([]models.DataLineageEvent, error)
	OrganizationLineage(ctx context.Context, organizationID string, query dto.LineageQuery, actor *models.JWTClaims) ([]models.DataLineageEvent, error)
}

// LineageHandler exposes read endpoints over the lineage trail.
type LineageHandler struct {
	service lineageService
}

// NewLineageHandler constructs the handler.
func NewLineageHandler(service lineageService) *LineageHandler {
	return &LineageHandler{service: service}
}

// Document godoc
// @Summary Lineage history for one document
// @Tags Lineage
// @Produce json
// @Param collection path string true "Collection name"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /lineage/{collection}/{id} [get]
func (h *LineageHandler) Document(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	events, err := h.service.DocumentLineage(c.Request.Context(), c.Param("collection"), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Organization godoc
// @Summary Lineage history for an organization
// @Tags Lineage
// @Produce json
// @Param orgId path string true "Organization ID"
// @Param action query string false "Filter by action"
// @Param startDate query string false "RFC3339 lower bound"
// @Param endDate query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Router /lineage/organizations/{orgId} [get]
func (h *LineageHandler) Organization(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.LineageQuery{
		Action: models.LineageAction(strings.TrimSpace(c.Query("action"))),
	}
	if raw := c.Query("startDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "startDate must be RFC3339"))
			return
		}
		query.StartDate = &ts
	}
	if raw := c.Query("endDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "endDate must be RFC3339"))
			return
		}
		query.EndDate = &ts
	}
	events, err := h.service.OrganizationLineage(c.Request.Context(), c.Param("orgId"), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

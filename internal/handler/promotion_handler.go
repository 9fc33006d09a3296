package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stageops/promotion-api/internal/dto"
	"github.com/stageops/promotion-api/internal/models"
	appErrors "github.com/stageops/promotion-api/pkg/errors"
	"github.com/stageops/promotion-api/pkg/response"
)

type promotionService interface {
	Create(ctx context.Context, req dto.CreatePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
	List(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PromotionRequest, error)
	Approve(ctx context.Context, id string, req dto.ApprovePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectPromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
	ResolveConflict(ctx context.Context, id, conflictID string, req dto.ResolveConflictRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
}

type promotionExecutor interface {
	Execute(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.PromotionRequest, error)
	Rollback(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.PromotionSnapshot, error)
}

// PromotionHandler exposes REST endpoints for the promotion workflow.
type PromotionHandler struct {
	service  promotionService
	executor promotionExecutor
}

// NewPromotionHandler constructs the handler.
func NewPromotionHandler(service promotionService, executor promotionExecutor) *PromotionHandler {
	return &PromotionHandler{service: service, executor: executor}
}

// Create godoc
// @Summary Submit a promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body dto.CreatePromotionRequest true "Promotion payload"
// @Success 201 {object} response.Envelope
// @Router /promotions [post]
func (h *PromotionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid promotion payload"))
		return
	}
	request, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List promotion requests
// @Tags Promotions
// @Produce json
// @Param organizationId query string false "Organization ID"
// @Param status query string false "Comma separated statuses"
// @Param resourceType query string false "Resource type"
// @Success 200 {object} response.Envelope
// @Router /promotions [get]
func (h *PromotionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.PromotionQuery{
		OrganizationID: strings.TrimSpace(c.Query("organizationId")),
		ResourceType:   models.ResourceType(strings.TrimSpace(c.Query("resourceType"))),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.PromotionStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.PromotionStatus(part))
		}
		query.Statuses = statuses
	}
	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get promotion request detail
// @Tags Promotions
// @Produce json
// @Param id path string true "Promotion request ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id} [get]
func (h *PromotionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Record an approval on a promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Promotion request ID"
// @Param payload body dto.ApprovePromotionRequest true "Approval notes"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id}/approve [post]
func (h *PromotionHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApprovePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject godoc
// @Summary Reject a promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Promotion request ID"
// @Param payload body dto.RejectPromotionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id}/reject [post]
func (h *PromotionHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ResolveConflict godoc
// @Summary Resolve a detected conflict on a promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Promotion request ID"
// @Param conflictId path string true "Conflict ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id}/conflicts/{conflictId}/resolve [post]
func (h *PromotionHandler) ResolveConflict(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
		return
	}
	request, err := h.service.ResolveConflict(c.Request.Context(), c.Param("id"), c.Param("conflictId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Execute godoc
// @Summary Execute a fully approved promotion
// @Tags Promotions
// @Produce json
// @Param id path string true "Promotion request ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id}/execute [post]
func (h *PromotionHandler) Execute(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.executor.Execute(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Rollback godoc
// @Summary Roll back a completed promotion from its snapshot
// @Tags Promotions
// @Produce json
// @Param id path string true "Promotion request ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{id}/rollback [post]
func (h *PromotionHandler) Rollback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	snapshot, err := h.executor.Rollback(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

package dto

import (
	"time"

	"github.com/stageops/promotion-api/internal/models"
)

// CreatePromotionRequest payload for opening a staging-to-production
// promotion of a single resource.
type CreatePromotionRequest struct {
	OrganizationID string              `json:"organizationId"`
	ResourceType   models.ResourceType `json:"resourceType"`
	ResourceID     string              `json:"resourceId"`
	ResourceName   string              `json:"resourceName"`
	Changes        []models.Change     `json:"changes"`
}

// ApprovePromotionRequest carries an approver's optional notes; the
// approving role comes from the caller's claims, never the body.
type ApprovePromotionRequest struct {
	Notes string `json:"notes"`
}

// RejectPromotionRequest requires a reason for the audit trail.
type RejectPromotionRequest struct {
	Reason string `json:"reason"`
}

// ResolveConflictRequest selects the winning value for one conflict.
type ResolveConflictRequest struct {
	Strategy    models.ResolutionStrategy `json:"strategy"`
	MergedValue interface{}               `json:"mergedValue,omitempty"`
}

// PromotionQuery mirrors supported listing filters.
type PromotionQuery struct {
	OrganizationID string
	Statuses       []models.PromotionStatus
	ResourceType   models.ResourceType
}

// LineageQuery mirrors organization lineage filters.
type LineageQuery struct {
	Action    models.LineageAction
	StartDate *time.Time
	EndDate   *time.Time
}

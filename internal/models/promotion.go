package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Environment identifies which copy of a resource an operation targets.
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// PromotionStatus captures the lifecycle of a promotion request.
type PromotionStatus string

const (
	PromotionStatusPending       PromotionStatus = "pending"
	PromotionStatusApprovedOrg   PromotionStatus = "approved-org"
	PromotionStatusApprovedSuper PromotionStatus = "approved-super"
	PromotionStatusExecuting     PromotionStatus = "executing"
	PromotionStatusCompleted     PromotionStatus = "completed"
	PromotionStatusFailed        PromotionStatus = "failed"
	PromotionStatusRejected      PromotionStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s PromotionStatus) Terminal() bool {
	switch s {
	case PromotionStatusCompleted, PromotionStatusFailed, PromotionStatusRejected:
		return true
	}
	return false
}

// ApproverRole identifies one of the two independent approval authorities.
type ApproverRole string

const (
	ApproverRoleAdmin      ApproverRole = "admin"
	ApproverRoleSuperAdmin ApproverRole = "superadmin"
)

// Change describes one proposed field mutation.
type Change struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
}

// Approval records one role's sign-off.
type Approval struct {
	UserID     string       `json:"userId"`
	Role       ApproverRole `json:"role"`
	ApprovedAt time.Time    `json:"approvedAt"`
	Notes      string       `json:"notes,omitempty"`
}

// Rejection records a refusal; any single rejection is final.
type Rejection struct {
	UserID     string       `json:"userId"`
	Role       ApproverRole `json:"role"`
	RejectedAt time.Time    `json:"rejectedAt"`
	Reason     string       `json:"reason"`
}

// ResolutionStrategy selects which value wins when a conflict is resolved.
type ResolutionStrategy string

const (
	ResolutionAcceptStaging  ResolutionStrategy = "accept-staging"
	ResolutionKeepProduction ResolutionStrategy = "keep-production"
	ResolutionManual         ResolutionStrategy = "manual"
)

// ConflictResolution is the chosen outcome for a single conflict.
type ConflictResolution struct {
	Strategy    ResolutionStrategy `json:"strategy"`
	MergedValue interface{}        `json:"mergedValue,omitempty"`
}

// Conflict is a field-level divergence between the staged value and the
// value currently live in production.
type Conflict struct {
	ID                string              `json:"id"`
	Field             string              `json:"field"`
	StagingValue      interface{}         `json:"stagingValue"`
	ProductionValue   interface{}         `json:"productionValue"`
	StagingVersion    int64               `json:"stagingVersion"`
	ProductionVersion int64               `json:"productionVersion"`
	DetectedAt        time.Time           `json:"detectedAt"`
	Resolved          bool                `json:"resolved"`
	Resolution        *ConflictResolution `json:"resolution,omitempty"`
}

// ConflictResolutionRecord is the audit entry appended when a conflict
// is resolved.
type ConflictResolutionRecord struct {
	ConflictID string             `json:"conflictId"`
	Resolution ConflictResolution `json:"resolution"`
	ResolvedBy string             `json:"resolvedBy"`
	ResolvedAt time.Time          `json:"resolvedAt"`
}

// ExecutionResult records the outcome of an execution attempt.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	SnapshotID string `json:"snapshotId,omitempty"`
}

// PromotionRequest is the unit of work moving one resource's changes from
// staging to production under dual approval.
type PromotionRequest struct {
	ID             string       `db:"id" json:"id"`
	OrganizationID string       `db:"organization_id" json:"organizationId"`
	ResourceType   ResourceType `db:"resource_type" json:"resourceType"`
	ResourceID     string       `db:"resource_id" json:"resourceId"`
	ResourceName   string       `db:"resource_name" json:"resourceName"`

	SourceEnvironment      Environment `db:"source_environment" json:"sourceEnvironment"`
	DestinationEnvironment Environment `db:"destination_environment" json:"destinationEnvironment"`

	Changes ChangeList      `db:"changes" json:"changes"`
	Status  PromotionStatus `db:"status" json:"status"`

	Approvals           ApprovalList         `db:"approvals" json:"approvals"`
	Rejections          RejectionList        `db:"rejections" json:"rejections"`
	Conflicts           ConflictList         `db:"conflicts" json:"conflicts"`
	ConflictResolutions ResolutionRecordList `db:"conflict_resolutions" json:"conflictResolutions"`

	ExecutedAt      *time.Time          `db:"executed_at" json:"executedAt,omitempty"`
	ExecutedBy      *string             `db:"executed_by" json:"executedBy,omitempty"`
	ExecutionResult NullExecutionResult `db:"execution_result" json:"executionResult"`

	RequestedBy string    `db:"requested_by" json:"requestedBy"`
	RequestedAt time.Time `db:"requested_at" json:"requestedAt"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`

	// RecordVersion guards read-modify-write updates against lost races.
	RecordVersion int64 `db:"record_version" json:"-"`
}

// StatusFromApprovals derives the lifecycle status implied by an approval
// set. Status is always a pure function of the approvals, never mutated
// independently.
func StatusFromApprovals(approvals ApprovalList) PromotionStatus {
	hasAdmin := false
	hasSuper := false
	for _, a := range approvals {
		switch a.Role {
		case ApproverRoleAdmin:
			hasAdmin = true
		case ApproverRoleSuperAdmin:
			hasSuper = true
		}
	}
	switch {
	case hasAdmin && hasSuper:
		return PromotionStatusApprovedSuper
	case hasAdmin:
		return PromotionStatusApprovedOrg
	default:
		return PromotionStatusPending
	}
}

// ApprovedBy reports whether the given role already signed off.
func (r *PromotionRequest) ApprovedBy(role ApproverRole) bool {
	for _, a := range r.Approvals {
		if a.Role == role {
			return true
		}
	}
	return false
}

// UnresolvedConflicts returns conflicts still blocking execution.
func (r *PromotionRequest) UnresolvedConflicts() ConflictList {
	var open ConflictList
	for _, c := range r.Conflicts {
		if !c.Resolved {
			open = append(open, c)
		}
	}
	return open
}

// ReadyToExecute reports whether execution preconditions currently hold.
func (r *PromotionRequest) ReadyToExecute() bool {
	return r.Status == PromotionStatusApprovedSuper && len(r.UnresolvedConflicts()) == 0
}

// MarshalJSON surfaces the derived readyToExecute flag in API payloads.
func (r PromotionRequest) MarshalJSON() ([]byte, error) {
	type alias PromotionRequest
	return json.Marshal(struct {
		alias
		ReadyToExecute bool `json:"readyToExecute"`
	}{alias(r), r.ReadyToExecute()})
}

// Summary renders a short human-readable digest used in logs.
func (r *PromotionRequest) Summary() string {
	return fmt.Sprintf("%s %q | %d changes | %d conflicts (%d unresolved)",
		r.ResourceType, r.ResourceName, len(r.Changes), len(r.Conflicts), len(r.UnresolvedConflicts()))
}

// PromotionFilter constrains listing queries.
type PromotionFilter struct {
	OrganizationID string
	Statuses       []PromotionStatus
	ResourceType   ResourceType
	RequestedBy    string
	Limit          int
	Offset         int
}

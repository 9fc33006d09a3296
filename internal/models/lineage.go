package models

import "time"

// LineageAction identifies the state-changing action a lineage event
// describes.
type LineageAction string

const (
	LineageActionPromoted   LineageAction = "promoted"
	LineageActionRolledBack LineageAction = "rolled-back"
)

// DataLineageEvent is an append-only audit record. Events are never
// updated or deleted by this subsystem and outlive the requests that
// generated them.
type DataLineageEvent struct {
	ID                 string        `db:"id" json:"id"`
	DocumentID         string        `db:"document_id" json:"documentId"`
	Collection         string        `db:"collection" json:"collection"`
	Action             LineageAction `db:"action" json:"action"`
	Source             Environment   `db:"source" json:"source"`
	OrganizationID     string        `db:"organization_id" json:"organizationId"`
	PerformedBy        string        `db:"performed_by" json:"performedBy"`
	Changes            ChangeList    `db:"changes" json:"changes"`
	PromotionRequestID string        `db:"promotion_request_id" json:"promotionRequestId,omitempty"`
	PreviousSource     Environment   `db:"previous_source" json:"previousSource,omitempty"`
	Timestamp          time.Time     `db:"timestamp" json:"timestamp"`
}

// LineageFilter constrains organization-scoped lineage queries.
type LineageFilter struct {
	OrganizationID string
	Action         LineageAction
	StartDate      *time.Time
	EndDate        *time.Time
	Limit          int
}

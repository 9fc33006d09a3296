package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// BeforeState is the verbatim production state captured immediately
// before a promotion is applied. A nil Data means the resource did not
// exist in production; rolling back such a snapshot deletes the resource.
type BeforeState struct {
	ResourceID   string       `json:"resourceId"`
	ResourceType ResourceType `json:"resourceType"`
	Data         JSONMap      `json:"data"`
	Version      int64        `json:"version"`
}

// Value implements driver.Valuer.
func (b BeforeState) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner.
func (b *BeforeState) Scan(src interface{}) error {
	return jsonbScan(src, b)
}

// PromotionSnapshot is a point-in-time capture of production state,
// created once per execution attempt and immutable thereafter. It is the
// only path back to the pre-promotion state.
type PromotionSnapshot struct {
	ID                 string      `db:"id" json:"id"`
	PromotionRequestID string      `db:"promotion_request_id" json:"promotionRequestId"`
	OrganizationID     string      `db:"organization_id" json:"organizationId"`
	BeforeState        BeforeState `db:"before_state" json:"beforeState"`
	CreatedAt          time.Time   `db:"created_at" json:"createdAt"`
	ExpiresAt          time.Time   `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the retention window has elapsed.
func (s *PromotionSnapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

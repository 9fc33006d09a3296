package models

import "time"

// UserRole represents the available roles for the RBAC system.
// Superadmin spans all organizations; admin scopes to one.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleMember     UserRole = "MEMBER"
)

// ApproverRoleFor maps an RBAC role onto the approval authority it
// carries in the promotion workflow.
func ApproverRoleFor(role UserRole) (ApproverRole, bool) {
	switch role {
	case RoleSuperAdmin:
		return ApproverRoleSuperAdmin, true
	case RoleAdmin:
		return ApproverRoleAdmin, true
	default:
		return "", false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FullName       string     `db:"full_name" json:"full_name"`
	Role           UserRole   `db:"role" json:"role"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Active         bool       `db:"active" json:"active"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

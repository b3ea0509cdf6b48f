package models

import "time"

// Assignment edge statuses. Revoking a role flips the edge to inactive rather
// than deleting it, so assignment history stays queryable.
const (
	AssignmentStatusActive   = "active"
	AssignmentStatusInactive = "inactive"
)

// UserRole is the user-to-role assignment edge. At most one edge exists per
// (user, role) pair; re-assignment reactivates the revoked edge in place.
type UserRole struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	UserID     uint64    `gorm:"uniqueIndex:idx_user_roles_user_role,priority:1;not null" json:"user_id"`
	RoleID     uint64    `gorm:"uniqueIndex:idx_user_roles_user_role,priority:2;not null" json:"role_id"`
	AssignedBy uint64    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	Status     string    `gorm:"default:active;index" json:"status"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

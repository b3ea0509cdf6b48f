package models

import "time"

// User describes an administrative user of the back office. Authentication is
// handled by an external gateway; the core only needs identity and status.
type User struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	RoleAssignments []UserRole `gorm:"foreignKey:UserID" json:"role_assignments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package models

import "time"

// Role statuses.
const (
	RoleStatusActive   = "active"
	RoleStatusDisabled = "disabled"
)

// Role is a named bundle of permissions assignable to users.
//
// GrantsAll is the tagged wildcard variant: when set, the role means "every
// permission" and its attached rows are a snapshot that ResyncWildcardRoles
// refreshes as new permissions are introduced.
type Role struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Level       int    `gorm:"default:0" json:"level"`
	IsSystem    bool   `gorm:"default:false" json:"is_system"`
	IsDefault   bool   `gorm:"default:false" json:"is_default"`
	GrantsAll   bool   `gorm:"default:false" json:"grants_all"`
	Status      string `gorm:"default:active;index" json:"status"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

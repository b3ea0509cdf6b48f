package models

import (
	"time"

	"gorm.io/datatypes"
)

// Permission statuses.
const (
	PermissionStatusActive  = "active"
	PermissionStatusRetired = "retired"
)

// WildcardCode is the sentinel permission code meaning "every permission".
// It never exists as a Permission row; roles granting it carry GrantsAll instead.
const WildcardCode = "*"

// Permission is an atomic, named capability grant (e.g. "intent:update").
type Permission struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	Code         string         `gorm:"uniqueIndex;not null" json:"code"`
	Name         string         `gorm:"not null" json:"name"`
	Description  string         `json:"description"`
	Module       string         `gorm:"index" json:"module"`
	Level        int            `gorm:"default:0" json:"level"`
	Dependencies datatypes.JSON `json:"dependencies"`
	IsSystem     bool           `gorm:"default:false" json:"is_system"`
	Status       string         `gorm:"default:active;index" json:"status"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

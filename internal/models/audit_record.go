package models

import (
	"time"

	"gorm.io/datatypes"
)

// Operation types form a closed taxonomy so the detector can match on them.
const (
	OpUserLogin       = "USER_LOGIN"
	OpUserLogout      = "USER_LOGOUT"
	OpRoleCreate      = "ROLE_CREATE"
	OpRoleUpdate      = "ROLE_UPDATE"
	OpRoleDelete      = "ROLE_DELETE"
	OpRoleAssign      = "ROLE_ASSIGN"
	OpRoleRevoke      = "ROLE_REVOKE"
	OpPermissionGrant = "PERMISSION_GRANT"
	OpPolicySeed      = "POLICY_SEED"
	OpDataCleanup     = "DATA_CLEANUP"
	OpResourceWrite   = "RESOURCE_WRITE"
)

// AuditRecord is an immutable log entry describing one observed operation.
// Rows are written once by the audit sink and only ever removed in bulk by the
// retention cleanup.
type AuditRecord struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	RequestID     string         `gorm:"index" json:"request_id"`
	ActorID       *uint64        `gorm:"index" json:"actor_id"`
	ActorName     string         `json:"actor_name"`
	Action        string         `gorm:"not null" json:"action"`
	OperationType string         `gorm:"not null;index" json:"operation_type"`
	ResourceType  string         `gorm:"index" json:"resource_type"`
	ResourceID    string         `json:"resource_id"`
	ResourceName  string         `json:"resource_name"`
	Success       bool           `gorm:"index" json:"success"`
	IPAddress     string         `gorm:"index" json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	OldValue      datatypes.JSON `json:"old_value,omitempty"`
	NewValue      datatypes.JSON `json:"new_value,omitempty"`
	ErrorText     string         `json:"error_text,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

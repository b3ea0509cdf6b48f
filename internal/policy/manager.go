package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/auditctx"
	"github.com/arialabs/aria-admin/internal/database"
	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
)

// Manager is the sole mutator of the policy store: role lifecycle, role
// permission sets, and user role assignments.
type Manager struct {
	db        *gorm.DB
	validator *Validator
	audit     *audit.Service
}

// NewManager constructs a Manager. The audit sink is optional; when nil,
// mutations simply go unaudited.
func NewManager(db *gorm.DB, auditSvc *audit.Service) (*Manager, error) {
	if db == nil {
		return nil, errors.New("policy manager: db is required")
	}
	validator, err := NewValidator(db)
	if err != nil {
		return nil, err
	}
	return &Manager{db: db, validator: validator, audit: auditSvc}, nil
}

// CreateRoleInput describes the payload accepted by CreateRole.
type CreateRoleInput struct {
	Code        string
	Name        string
	Description string
	Level       int
	IsDefault   bool
	IsSystem    bool
}

// UpdateRoleInput describes mutable fields on a role. Nil pointers leave the
// field untouched.
type UpdateRoleInput struct {
	Code        string
	Name        string
	Description *string
	Level       *int
	IsDefault   *bool
}

// CreateRole registers a new role. Codes are unique; duplicates yield Conflict.
func (m *Manager) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	code := strings.TrimSpace(input.Code)
	if code == "" || code == models.WildcardCode {
		return nil, apperrors.NewValidation("role code is required and cannot be the wildcard sentinel")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("role name is required")
	}

	role := &models.Role{
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Level:       input.Level,
		IsDefault:   input.IsDefault,
		IsSystem:    input.IsSystem,
		Status:      models.RoleStatusActive,
	}

	if err := m.db.WithContext(ctx).Create(role).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithMessage(fmt.Sprintf("role code %q already exists", code))
		}
		return nil, storeError("create role", err)
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.create",
		OperationType: models.OpRoleCreate,
		ResourceType:  "role",
		ResourceID:    fmt.Sprintf("%d", role.ID),
		ResourceName:  role.Code,
		Success:       true,
		NewValue:      map[string]any{"code": role.Code, "name": role.Name, "level": role.Level},
	})

	return role, nil
}

// UpdateRole modifies role metadata. System roles keep their code and system
// flag; attempts to change them are rejected.
func (m *Manager) UpdateRole(ctx context.Context, roleID uint64, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	role, err := m.loadRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if code := strings.TrimSpace(input.Code); code != "" && code != role.Code {
		if role.IsSystem {
			return nil, apperrors.ErrConflict.WithMessage("system role codes are immutable")
		}
		updates["code"] = code
	}
	if name := strings.TrimSpace(input.Name); name != "" && name != role.Name {
		updates["name"] = name
	}
	if input.Description != nil && *input.Description != role.Description {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Level != nil && *input.Level != role.Level {
		updates["level"] = *input.Level
	}
	if input.IsDefault != nil && *input.IsDefault != role.IsDefault {
		updates["is_default"] = *input.IsDefault
	}

	if len(updates) == 0 {
		return role, nil
	}

	if err := m.db.WithContext(ctx).Model(role).Updates(updates).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithMessage("role code already exists")
		}
		return nil, storeError("update role", err)
	}

	if err := m.db.WithContext(ctx).First(role, "id = ?", roleID).Error; err != nil {
		return nil, storeError("reload role", err)
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.update",
		OperationType: models.OpRoleUpdate,
		ResourceType:  "role",
		ResourceID:    fmt.Sprintf("%d", role.ID),
		ResourceName:  role.Code,
		Success:       true,
		NewValue:      updates,
	})

	return role, nil
}

// DeleteRole removes a role. System roles and roles still referenced by
// active user assignments yield Conflict.
func (m *Manager) DeleteRole(ctx context.Context, roleID uint64) error {
	ctx = ensureContext(ctx)

	role, err := m.loadRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperrors.ErrConflict.WithMessage("system roles cannot be deleted")
	}

	var activeEdges int64
	if err := m.db.WithContext(ctx).
		Model(&models.UserRole{}).
		Where("role_id = ? AND status = ?", roleID, models.AssignmentStatusActive).
		Count(&activeEdges).Error; err != nil {
		return storeError("count role assignments", err)
	}
	if activeEdges > 0 {
		return apperrors.ErrConflict.WithMessage(
			fmt.Sprintf("role %q is still assigned to %d active users", role.Code, activeEdges))
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(role).Association("Permissions").Clear(); err != nil {
			return storeError("clear role permissions", err)
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&models.UserRole{}).Error; err != nil {
			return storeError("delete role assignments", err)
		}
		if err := tx.Delete(role).Error; err != nil {
			return storeError("delete role", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.delete",
		OperationType: models.OpRoleDelete,
		ResourceType:  "role",
		ResourceID:    fmt.Sprintf("%d", roleID),
		ResourceName:  role.Code,
		Success:       true,
		OldValue:      map[string]any{"code": role.Code, "name": role.Name},
	})

	return nil
}

// ListRoles returns all roles with their permission sets, ordered by level
// descending for display.
func (m *Manager) ListRoles(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := m.db.WithContext(ctx).
		Preload("Permissions").
		Order("level DESC, code ASC").
		Find(&roles).Error; err != nil {
		return nil, storeError("list roles", err)
	}
	return roles, nil
}

// ListPermissions returns the full permission registry.
func (m *Manager) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := m.db.WithContext(ctx).Order("module ASC, level ASC, code ASC").Find(&perms).Error; err != nil {
		return nil, storeError("list permissions", err)
	}
	return perms, nil
}

// SetPermissionsOptions tunes SetRolePermissions.
type SetPermissionsOptions struct {
	// EnforceDependencies rejects sets whose declared dependencies are not
	// themselves part of the set.
	EnforceDependencies bool
	// Reason is carried into the emitted audit record.
	Reason string
}

// SetRolePermissions atomically replaces the role's permission set. The
// sentinel ["*"] converts the role to the wildcard variant and snapshots
// every currently known permission onto it; later additions require
// ResyncWildcardRoles. Returns the number of attached permissions.
func (m *Manager) SetRolePermissions(ctx context.Context, roleID uint64, codes []string, opts SetPermissionsOptions) (int, error) {
	ctx = ensureContext(ctx)

	wildcard := len(codes) == 1 && strings.TrimSpace(codes[0]) == models.WildcardCode

	var cleaned []string
	if !wildcard {
		var err error
		cleaned, err = normaliseCodes(codes)
		if err != nil {
			return 0, err
		}
	}

	var attached int
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("role not found")
			}
			return storeError("load role", err)
		}

		var perms []models.Permission
		if wildcard {
			if err := tx.Where("status = ?", models.PermissionStatusActive).Find(&perms).Error; err != nil {
				return storeError("load permissions", err)
			}
		} else {
			if opts.EnforceDependencies {
				report, err := validateSetTx(tx, cleaned)
				if err != nil {
					return err
				}
				if !report.Valid {
					detail, _ := json.Marshal(report.Missing)
					return apperrors.NewValidation(
						fmt.Sprintf("permission set is missing declared dependencies: %s", detail))
				}
			}

			if len(cleaned) > 0 {
				if err := tx.Where("code IN ?", cleaned).Find(&perms).Error; err != nil {
					return storeError("load permissions", err)
				}
				if len(perms) != len(cleaned) {
					return apperrors.NewValidation("permission set references unknown codes")
				}
			}
		}

		if role.GrantsAll != wildcard {
			if err := tx.Model(&role).Update("grants_all", wildcard).Error; err != nil {
				return storeError("update role wildcard flag", err)
			}
		}

		if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return storeError("replace role permissions", err)
		}

		attached = len(perms)
		return nil
	})
	if err != nil {
		return 0, err
	}

	grantList := cleaned
	if wildcard {
		grantList = []string{models.WildcardCode}
	}
	m.recordAudit(ctx, audit.Entry{
		Action:        "role.set_permissions",
		OperationType: models.OpPermissionGrant,
		ResourceType:  "role",
		ResourceID:    fmt.Sprintf("%d", roleID),
		Success:       true,
		NewValue: map[string]any{
			"permissions": grantList,
			"attached":    attached,
			"reason":      opts.Reason,
		},
	})

	return attached, nil
}

// AssignRole attaches a role to a user. Assigning an already-active edge is a
// no-op that reports alreadyAssigned. A previously revoked edge is
// re-activated rather than duplicated.
func (m *Manager) AssignRole(ctx context.Context, userID, roleID, assignedBy uint64) (alreadyAssigned bool, err error) {
	ctx = ensureContext(ctx)

	if _, err := m.loadUser(ctx, userID); err != nil {
		return false, err
	}
	role, err := m.loadRole(ctx, roleID)
	if err != nil {
		return false, err
	}

	var edge models.UserRole
	err = m.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		First(&edge).Error

	switch {
	case err == nil && edge.Status == models.AssignmentStatusActive:
		return true, nil
	case err == nil:
		updates := map[string]any{
			"status":      models.AssignmentStatusActive,
			"assigned_by": assignedBy,
			"assigned_at": time.Now(),
		}
		if err := m.db.WithContext(ctx).Model(&edge).Updates(updates).Error; err != nil {
			return false, storeError("reactivate assignment", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		edge = models.UserRole{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
			AssignedAt: time.Now(),
			Status:     models.AssignmentStatusActive,
		}
		if err := m.db.WithContext(ctx).Create(&edge).Error; err != nil {
			// A concurrent assign created the edge between our lookup and
			// the insert; the unique (user_id, role_id) index catches it.
			if database.IsUniqueConstraintError(err) {
				return true, nil
			}
			return false, storeError("create assignment", err)
		}
	default:
		return false, storeError("load assignment", err)
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.assign",
		OperationType: models.OpRoleAssign,
		ResourceType:  "user",
		ResourceID:    fmt.Sprintf("%d", userID),
		ResourceName:  role.Code,
		Success:       true,
		NewValue:      map[string]any{"role_id": roleID, "assigned_by": assignedBy},
	})

	return false, nil
}

// RevokeRole marks the user's active edge for the role inactive, preserving
// assignment history. Revoking an absent edge is a no-op.
func (m *Manager) RevokeRole(ctx context.Context, userID, roleID uint64) (revoked bool, err error) {
	ctx = ensureContext(ctx)

	result := m.db.WithContext(ctx).
		Model(&models.UserRole{}).
		Where("user_id = ? AND role_id = ? AND status = ?", userID, roleID, models.AssignmentStatusActive).
		Update("status", models.AssignmentStatusInactive)
	if result.Error != nil {
		return false, storeError("revoke assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.revoke",
		OperationType: models.OpRoleRevoke,
		ResourceType:  "user",
		ResourceID:    fmt.Sprintf("%d", userID),
		Success:       true,
		OldValue:      map[string]any{"role_id": roleID},
	})

	return true, nil
}

// ListAssignments returns a user's role assignment history, newest first,
// including revoked edges.
func (m *Manager) ListAssignments(ctx context.Context, userID uint64) ([]models.UserRole, error) {
	ctx = ensureContext(ctx)

	if _, err := m.loadUser(ctx, userID); err != nil {
		return nil, err
	}

	var edges []models.UserRole
	if err := m.db.WithContext(ctx).
		Preload("Role").
		Where("user_id = ?", userID).
		Order("assigned_at DESC").
		Find(&edges).Error; err != nil {
		return nil, storeError("list assignments", err)
	}
	return edges, nil
}

// ResyncWildcardRoles re-snapshots every wildcard role so permissions
// introduced after the grant are attached. Returns the number of roles
// touched.
func (m *Manager) ResyncWildcardRoles(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := m.db.WithContext(ctx).Where("grants_all = ?", true).Find(&roles).Error; err != nil {
		return 0, storeError("load wildcard roles", err)
	}
	if len(roles) == 0 {
		return 0, nil
	}

	var perms []models.Permission
	if err := m.db.WithContext(ctx).Where("status = ?", models.PermissionStatusActive).Find(&perms).Error; err != nil {
		return 0, storeError("load permissions", err)
	}

	codes := make([]string, 0, len(roles))
	for i := range roles {
		if err := m.db.WithContext(ctx).Model(&roles[i]).Association("Permissions").Replace(perms); err != nil {
			return 0, storeError("resync wildcard role", err)
		}
		codes = append(codes, roles[i].Code)
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "role.resync_wildcard",
		OperationType: models.OpPermissionGrant,
		ResourceType:  "role",
		Success:       true,
		NewValue: map[string]any{
			"roles":    codes,
			"attached": len(perms),
		},
	})

	return len(roles), nil
}

// InitializeSystemPolicy seeds the declarative catalog with find-or-create
// semantics keyed by code, then re-snapshots wildcard roles. Safe to run on
// every process start: existing rows are never rewritten, only missing
// catalog entries are added.
func (m *Manager) InitializeSystemPolicy(ctx context.Context) error {
	ctx = ensureContext(ctx)

	permDefs := SystemPermissions()
	if err := ValidateCatalog(permDefs); err != nil {
		return err
	}

	for _, def := range permDefs {
		deps, err := json.Marshal(def.DependsOn)
		if err != nil {
			return fmt.Errorf("policy: marshal dependencies for %s: %w", def.Code, err)
		}

		perm := models.Permission{
			Code:         def.Code,
			Name:         def.Name,
			Description:  def.Description,
			Module:       def.Module,
			Level:        def.Level,
			Dependencies: datatypes.JSON(deps),
			IsSystem:     true,
			Status:       models.PermissionStatusActive,
		}
		if err := m.db.WithContext(ctx).
			Where(models.Permission{Code: def.Code}).
			Attrs(perm).
			FirstOrCreate(&models.Permission{}).Error; err != nil {
			return storeError("seed permission", err)
		}
	}

	for _, def := range SystemRoles() {
		var existing models.Role
		err := m.db.WithContext(ctx).Where("code = ?", def.Code).First(&existing).Error
		switch {
		case err == nil:
			// Existing system roles keep their (possibly admin-edited)
			// permission sets.
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return storeError("load role", err)
		}

		wildcard := len(def.Permissions) == 1 && def.Permissions[0] == models.WildcardCode

		role := models.Role{
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
			Level:       def.Level,
			IsSystem:    true,
			IsDefault:   def.IsDefault,
			GrantsAll:   wildcard,
			Status:      models.RoleStatusActive,
		}
		if err := m.db.WithContext(ctx).Create(&role).Error; err != nil {
			return storeError("seed role", err)
		}

		var perms []models.Permission
		if wildcard {
			if err := m.db.WithContext(ctx).Where("status = ?", models.PermissionStatusActive).Find(&perms).Error; err != nil {
				return storeError("load permissions", err)
			}
		} else if len(def.Permissions) > 0 {
			if err := m.db.WithContext(ctx).Where("code IN ?", def.Permissions).Find(&perms).Error; err != nil {
				return storeError("load permissions", err)
			}
			if len(perms) != len(def.Permissions) {
				return fmt.Errorf("policy: role %s references undeclared permissions", def.Code)
			}
		}
		if len(perms) > 0 {
			if err := m.db.WithContext(ctx).Model(&role).Association("Permissions").Replace(perms); err != nil {
				return storeError("attach role permissions", err)
			}
		}
	}

	if _, err := m.ResyncWildcardRoles(ctx); err != nil {
		return err
	}

	m.recordAudit(ctx, audit.Entry{
		Action:        "policy.seed",
		OperationType: models.OpPolicySeed,
		ResourceType:  "policy",
		ResourceName:  fmt.Sprintf("catalog-v%d", CatalogVersion),
		Success:       true,
	})

	return nil
}

// Validator exposes the manager's dependency validator for preview tooling.
func (m *Manager) Validator() *Validator {
	return m.validator
}

func (m *Manager) loadRole(ctx context.Context, roleID uint64) (*models.Role, error) {
	var role models.Role
	if err := m.db.WithContext(ctx).First(&role, "id = ?", roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("role not found")
		}
		return nil, storeError("load role", err)
	}
	return &role, nil
}

func (m *Manager) loadUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("user not found")
		}
		return nil, storeError("load user", err)
	}
	return &user, nil
}

// validateSetTx runs dependency validation inside the caller's transaction so
// the enforced set and the attached set come from the same snapshot.
func validateSetTx(tx *gorm.DB, codes []string) (*Report, error) {
	validator := &Validator{db: tx}
	return validator.ValidateSet(context.Background(), codes)
}

// recordAudit logs the entry while tolerating audit failures, enriched with
// actor metadata from the request context.
func (m *Manager) recordAudit(ctx context.Context, entry audit.Entry) {
	if m.audit == nil {
		return
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		entry.RequestID = actor.RequestID
		if actor.ID != 0 {
			id := actor.ID
			entry.ActorID = &id
		}
		entry.ActorName = actor.Name
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}
	m.audit.Submit(ctx, entry)
}

package policy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/database"
	"github.com/arialabs/aria-admin/internal/database/testutil"
	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	manager, err := NewManager(db, nil)
	require.NoError(t, err)
	require.NoError(t, manager.InitializeSystemPolicy(context.Background()))
	return manager, db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func roleByCode(t *testing.T, db *gorm.DB, code string) *models.Role {
	t.Helper()

	var role models.Role
	require.NoError(t, db.Preload("Permissions").Where("code = ?", code).First(&role).Error)
	return &role
}

func requireAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestInitializeSystemPolicyIsIdempotent(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	var permCount, roleCount int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&permCount).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCount).Error)
	require.Equal(t, int64(len(SystemPermissions())), permCount)
	require.Equal(t, int64(len(SystemRoles())), roleCount)

	// Running the seed again must not duplicate or rewrite anything.
	require.NoError(t, manager.InitializeSystemPolicy(ctx))

	var permCountAfter, roleCountAfter int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&permCountAfter).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCountAfter).Error)
	require.Equal(t, permCount, permCountAfter)
	require.Equal(t, roleCount, roleCountAfter)
}

func TestInitializeSystemPolicyPreservesEditedRoles(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	viewer := roleByCode(t, db, "viewer")
	attached, err := manager.SetRolePermissions(ctx, viewer.ID, []string{"intent:read"}, SetPermissionsOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, attached)

	require.NoError(t, manager.InitializeSystemPolicy(ctx))

	reloaded := roleByCode(t, db, "viewer")
	require.Len(t, reloaded.Permissions, 1)
	require.Equal(t, "intent:read", reloaded.Permissions[0].Code)
}

func TestInitializeSystemPolicySnapshotsWildcard(t *testing.T) {
	_, db := newTestManager(t)

	super := roleByCode(t, db, "super_admin")
	require.True(t, super.GrantsAll)
	require.Len(t, super.Permissions, len(SystemPermissions()))
}

func TestCreateRoleRejectsDuplicates(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "content_editor", Name: "Content Editor", Level: 20})
	require.NoError(t, err)
	require.NotZero(t, role.ID)
	require.Equal(t, models.RoleStatusActive, role.Status)

	_, err = manager.CreateRole(ctx, CreateRoleInput{Code: "content_editor", Name: "Other"})
	requireAppErrorCode(t, err, apperrors.ErrConflict.Code)
}

func TestCreateRoleRejectsWildcardCode(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.CreateRole(context.Background(), CreateRoleInput{Code: "*", Name: "Everything"})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)
}

func TestUpdateRoleKeepsSystemCodeImmutable(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	viewer := roleByCode(t, db, "viewer")
	_, err := manager.UpdateRole(ctx, viewer.ID, UpdateRoleInput{Code: "observer"})
	requireAppErrorCode(t, err, apperrors.ErrConflict.Code)

	// Metadata edits on system roles are still allowed.
	desc := "Read-only role"
	updated, err := manager.UpdateRole(ctx, viewer.ID, UpdateRoleInput{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, desc, updated.Description)
	require.Equal(t, "viewer", updated.Code)
}

func TestDeleteRoleGuards(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	viewer := roleByCode(t, db, "viewer")
	err := manager.DeleteRole(ctx, viewer.ID)
	requireAppErrorCode(t, err, apperrors.ErrConflict.Code)

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "temp", Name: "Temp"})
	require.NoError(t, err)

	user := createTestUser(t, db, "holder")
	_, err = manager.AssignRole(ctx, user.ID, role.ID, 0)
	require.NoError(t, err)

	err = manager.DeleteRole(ctx, role.ID)
	requireAppErrorCode(t, err, apperrors.ErrConflict.Code)

	// Revoked edges no longer block deletion; history is removed with the role.
	revoked, err := manager.RevokeRole(ctx, user.ID, role.ID)
	require.NoError(t, err)
	require.True(t, revoked)

	require.NoError(t, manager.DeleteRole(ctx, role.ID))

	err = manager.DeleteRole(ctx, role.ID)
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)
}

func TestSetRolePermissionsReplacesAtomically(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "editor", Name: "Editor"})
	require.NoError(t, err)

	attached, err := manager.SetRolePermissions(ctx, role.ID, []string{"intent:read", "intent:update"}, SetPermissionsOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, attached)

	attached, err = manager.SetRolePermissions(ctx, role.ID, []string{"category:read"}, SetPermissionsOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, attached)

	reloaded := roleByCode(t, db, "editor")
	require.Len(t, reloaded.Permissions, 1)
	require.Equal(t, "category:read", reloaded.Permissions[0].Code)
}

func TestSetRolePermissionsUnknownCodeLeavesSetUntouched(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "editor", Name: "Editor"})
	require.NoError(t, err)

	_, err = manager.SetRolePermissions(ctx, role.ID, []string{"intent:read"}, SetPermissionsOptions{})
	require.NoError(t, err)

	_, err = manager.SetRolePermissions(ctx, role.ID, []string{"intent:read", "no:such"}, SetPermissionsOptions{})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)

	reloaded := roleByCode(t, db, "editor")
	require.Len(t, reloaded.Permissions, 1)
	require.Equal(t, "intent:read", reloaded.Permissions[0].Code)
}

func TestSetRolePermissionsEnforcesDependencies(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "editor", Name: "Editor"})
	require.NoError(t, err)

	// user:delete declares user:read and user:update.
	_, err = manager.SetRolePermissions(ctx, role.ID, []string{"user:delete"}, SetPermissionsOptions{EnforceDependencies: true})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)

	attached, err := manager.SetRolePermissions(ctx, role.ID,
		[]string{"user:delete", "user:read", "user:update"},
		SetPermissionsOptions{EnforceDependencies: true})
	require.NoError(t, err)
	require.Equal(t, 3, attached)
}

func TestSetRolePermissionsWildcardSentinel(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "owner", Name: "Owner"})
	require.NoError(t, err)

	attached, err := manager.SetRolePermissions(ctx, role.ID, []string{"*"}, SetPermissionsOptions{})
	require.NoError(t, err)
	require.Equal(t, len(SystemPermissions()), attached)

	reloaded := roleByCode(t, db, "owner")
	require.True(t, reloaded.GrantsAll)

	// Replacing with a concrete set clears the wildcard variant again.
	attached, err = manager.SetRolePermissions(ctx, role.ID, []string{"intent:read"}, SetPermissionsOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, attached)
	require.False(t, roleByCode(t, db, "owner").GrantsAll)
}

func TestSetRolePermissionsRejectsMixedWildcard(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, CreateRoleInput{Code: "mixed", Name: "Mixed"})
	require.NoError(t, err)

	_, err = manager.SetRolePermissions(ctx, role.ID, []string{"*", "intent:read"}, SetPermissionsOptions{})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	viewer := roleByCode(t, db, "viewer")

	already, err := manager.AssignRole(ctx, user.ID, viewer.ID, 7)
	require.NoError(t, err)
	require.False(t, already)

	already, err = manager.AssignRole(ctx, user.ID, viewer.ID, 7)
	require.NoError(t, err)
	require.True(t, already)

	var edges int64
	require.NoError(t, db.Model(&models.UserRole{}).
		Where("user_id = ? AND role_id = ?", user.ID, viewer.ID).
		Count(&edges).Error)
	require.Equal(t, int64(1), edges)
}

func TestAssignmentEdgeUniquePerUserRole(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	user := createTestUser(t, db, "carol")
	viewer := roleByCode(t, db, "viewer")

	_, err := manager.AssignRole(ctx, user.ID, viewer.ID, 0)
	require.NoError(t, err)

	// The schema itself blocks a second edge for the pair, so an assign
	// racing past the existence check lands on the already-assigned path.
	dup := models.UserRole{
		UserID: user.ID,
		RoleID: viewer.ID,
		Status: models.AssignmentStatusActive,
	}
	err = db.Create(&dup).Error
	require.Error(t, err)
	require.True(t, database.IsUniqueConstraintError(err))
}

func TestRevokeRoleDeactivatesEdge(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	user := createTestUser(t, db, "bob")
	viewer := roleByCode(t, db, "viewer")

	_, err := manager.AssignRole(ctx, user.ID, viewer.ID, 0)
	require.NoError(t, err)

	revoked, err := manager.RevokeRole(ctx, user.ID, viewer.ID)
	require.NoError(t, err)
	require.True(t, revoked)

	// The edge survives as history instead of being deleted.
	var edge models.UserRole
	require.NoError(t, db.Where("user_id = ? AND role_id = ?", user.ID, viewer.ID).First(&edge).Error)
	require.Equal(t, models.AssignmentStatusInactive, edge.Status)

	// Revoking again reports nothing to do.
	revoked, err = manager.RevokeRole(ctx, user.ID, viewer.ID)
	require.NoError(t, err)
	require.False(t, revoked)

	// Re-assignment reactivates the historical edge instead of duplicating it.
	already, err := manager.AssignRole(ctx, user.ID, viewer.ID, 9)
	require.NoError(t, err)
	require.False(t, already)

	var edges int64
	require.NoError(t, db.Model(&models.UserRole{}).
		Where("user_id = ? AND role_id = ?", user.ID, viewer.ID).
		Count(&edges).Error)
	require.Equal(t, int64(1), edges)

	history, err := manager.ListAssignments(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, models.AssignmentStatusActive, history[0].Status)
	require.NotNil(t, history[0].Role)
	require.Equal(t, "viewer", history[0].Role.Code)
}

func TestAssignRoleUnknownTargets(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	viewer := roleByCode(t, db, "viewer")
	_, err := manager.AssignRole(ctx, 9999, viewer.ID, 0)
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)

	user := createTestUser(t, db, "carol")
	_, err = manager.AssignRole(ctx, user.ID, 9999, 0)
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)
}

func TestResyncWildcardRolesPicksUpNewPermissions(t *testing.T) {
	manager, db := newTestManager(t)
	ctx := context.Background()

	perm := models.Permission{
		Code:   "intent:publish",
		Name:   "Publish intents",
		Module: "intent",
		Level:  30,
		Status: models.PermissionStatusActive,
	}
	require.NoError(t, db.Create(&perm).Error)

	// The snapshot taken at grant time does not include the new permission.
	super := roleByCode(t, db, "super_admin")
	require.Len(t, super.Permissions, len(SystemPermissions()))

	touched, err := manager.ResyncWildcardRoles(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, touched)

	super = roleByCode(t, db, "super_admin")
	require.Len(t, super.Permissions, len(SystemPermissions())+1)
}

func TestResyncWildcardRolesEmitsAuditRecord(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	sink, err := audit.NewService(db)
	require.NoError(t, err)
	manager, err := NewManager(db, sink)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, manager.InitializeSystemPolicy(ctx))

	// Seeding already resyncs once; the explicit call must leave its own trace.
	var before int64
	require.NoError(t, db.Model(&models.AuditRecord{}).
		Where("action = ?", "role.resync_wildcard").
		Count(&before).Error)

	touched, err := manager.ResyncWildcardRoles(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, touched)

	var records []models.AuditRecord
	require.NoError(t, db.
		Where("action = ?", "role.resync_wildcard").
		Where("operation_type = ?", models.OpPermissionGrant).
		Order("id ASC").
		Find(&records).Error)
	require.Len(t, records, int(before)+1)

	last := records[len(records)-1]
	require.True(t, last.Success)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(last.NewValue, &snapshot))
	require.ElementsMatch(t, []any{"super_admin"}, snapshot["roles"])
}

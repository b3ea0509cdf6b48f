package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/policy"
	"github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/response"
	"github.com/arialabs/aria-admin/pkg/validator"
)

// PolicyHandler exposes role lifecycle and permission assignment endpoints.
type PolicyHandler struct {
	manager *policy.Manager
}

// NewPolicyHandler wires a PolicyHandler over the shared database handle.
func NewPolicyHandler(db *gorm.DB, auditSvc *audit.Service) (*PolicyHandler, error) {
	manager, err := policy.NewManager(db, auditSvc)
	if err != nil {
		return nil, err
	}
	return &PolicyHandler{manager: manager}, nil
}

// GET /api/policy/permissions
func (h *PolicyHandler) ListPermissions(c *gin.Context) {
	perms, err := h.manager.ListPermissions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}

// GET /api/policy/roles
func (h *PolicyHandler) ListRoles(c *gin.Context) {
	roles, err := h.manager.ListRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

type createRoleRequest struct {
	Code        string `json:"code" validate:"required,min=2,max=64,rolecode"`
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description"`
	Level       int    `json:"level" validate:"gte=0,lte=100"`
	IsDefault   bool   `json:"is_default"`
}

// POST /api/policy/roles
func (h *PolicyHandler) CreateRole(c *gin.Context) {
	var body createRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, errors.NewValidation(err.Error()))
		return
	}

	role, err := h.manager.CreateRole(requestContext(c), policy.CreateRoleInput{
		Code:        body.Code,
		Name:        body.Name,
		Description: body.Description,
		Level:       body.Level,
		IsDefault:   body.IsDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Level       *int    `json:"level"`
	IsDefault   *bool   `json:"is_default"`
}

// PATCH /api/policy/roles/:id
func (h *PolicyHandler) UpdateRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body updateRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}

	role, err := h.manager.UpdateRole(requestContext(c), roleID, policy.UpdateRoleInput{
		Code:        body.Code,
		Name:        body.Name,
		Description: body.Description,
		Level:       body.Level,
		IsDefault:   body.IsDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/policy/roles/:id
func (h *PolicyHandler) DeleteRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.manager.DeleteRole(requestContext(c), roleID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type setPermissionsRequest struct {
	Permissions         []string `json:"permissions" validate:"required"`
	EnforceDependencies bool     `json:"enforce_dependencies"`
	Reason              string   `json:"reason"`
}

// POST /api/policy/roles/:id/permissions
func (h *PolicyHandler) SetRolePermissions(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body setPermissionsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, errors.NewValidation(err.Error()))
		return
	}

	attached, err := h.manager.SetRolePermissions(requestContext(c), roleID, body.Permissions, policy.SetPermissionsOptions{
		EnforceDependencies: body.EnforceDependencies,
		Reason:              body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assigned_count": attached})
}

type validateDependenciesRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

// POST /api/policy/validate previews dependency validation before committing.
func (h *PolicyHandler) ValidateDependencies(c *gin.Context) {
	var body validateDependenciesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}

	report, err := h.manager.Validator().ValidateSet(requestContext(c), body.Permissions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// POST /api/policy/roles/resync-wildcard
func (h *PolicyHandler) ResyncWildcardRoles(c *gin.Context) {
	touched, err := h.manager.ResyncWildcardRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"resynced_roles": touched})
}

// POST /api/policy/initialize
func (h *PolicyHandler) Initialize(c *gin.Context) {
	if err := h.manager.InitializeSystemPolicy(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"catalog_version": policy.CatalogVersion})
}

// pathID parses a numeric path parameter, writing a BadRequest on failure.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, errors.NewBadRequest("invalid "+name+" parameter"))
		return 0, false
	}
	return id, true
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/middleware"
	"github.com/arialabs/aria-admin/internal/policy"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/response"
	"github.com/arialabs/aria-admin/pkg/validator"
)

// AccessHandler answers effective-permission queries and manages user role
// assignments.
type AccessHandler struct {
	resolver *policy.Resolver
	manager  *policy.Manager
}

// NewAccessHandler wires an AccessHandler over the shared database handle.
func NewAccessHandler(db *gorm.DB, auditSvc *audit.Service) (*AccessHandler, error) {
	resolver, err := policy.NewResolver(db)
	if err != nil {
		return nil, err
	}
	manager, err := policy.NewManager(db, auditSvc)
	if err != nil {
		return nil, err
	}
	return &AccessHandler{resolver: resolver, manager: manager}, nil
}

// GET /api/access/users/:id/permissions
func (h *AccessHandler) ResolvePermissions(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.resolver.Resolve(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GET /api/access/my/permissions
func (h *AccessHandler) MyPermissions(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	res, err := h.resolver.Resolve(requestContext(c), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

type checkPermissionRequest struct {
	UserID      uint64   `json:"user_id" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	Mode        string   `json:"mode" validate:"omitempty,oneof=all any"`
}

// POST /api/access/check
//
// Authorization callers get only a boolean; unknown or inactive users read as
// a deny rather than leaking policy internals. Store outages still surface.
func (h *AccessHandler) CheckPermission(c *gin.Context) {
	var body checkPermissionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	var (
		allowed bool
		err     error
	)
	if body.Mode == "any" {
		allowed, err = h.resolver.HasAny(requestContext(c), body.UserID, body.Permissions)
	} else {
		allowed, err = h.resolver.HasAll(requestContext(c), body.UserID, body.Permissions)
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrUnavailable.Code {
			response.Error(c, appErr)
			return
		}
		allowed = false
	}

	response.Success(c, http.StatusOK, gin.H{"has_permission": allowed})
}

type assignRoleRequest struct {
	RoleID uint64 `json:"role_id" validate:"required"`
}

// POST /api/access/users/:id/roles
func (h *AccessHandler) AssignRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body assignRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	actorID, _ := middleware.ActorID(c)
	alreadyAssigned, err := h.manager.AssignRole(requestContext(c), userID, body.RoleID, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"already_assigned": alreadyAssigned})
}

// DELETE /api/access/users/:id/roles/:roleID
func (h *AccessHandler) RevokeRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(c, "roleID")
	if !ok {
		return
	}

	revoked, err := h.manager.RevokeRole(requestContext(c), userID, roleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}

// GET /api/access/users/:id/roles returns assignment history including revoked edges.
func (h *AccessHandler) ListAssignments(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	edges, err := h.manager.ListAssignments(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, edges)
}

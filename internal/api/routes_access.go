package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/handlers"
	"github.com/arialabs/aria-admin/internal/middleware"
	"github.com/arialabs/aria-admin/internal/policy"
)

func registerAccessRoutes(api *gin.RouterGroup, db *gorm.DB, auditSvc *audit.Service, resolver *policy.Resolver) error {
	accessHandler, err := handlers.NewAccessHandler(db, auditSvc)
	if err != nil {
		return err
	}

	access := api.Group("/access")
	{
		// Identity is enough for callers asking about themselves or
		// checking a boolean; inspecting another user's policy needs
		// read access to users.
		access.GET("/my/permissions", accessHandler.MyPermissions)
		access.POST("/check", accessHandler.CheckPermission)

		users := access.Group("/users")
		{
			users.GET("/:id/permissions", middleware.RequirePermission(resolver, "user:read"), accessHandler.ResolvePermissions)
			users.GET("/:id/roles", middleware.RequirePermission(resolver, "user:read"), accessHandler.ListAssignments)
			users.POST("/:id/roles", middleware.RequirePermission(resolver, "role:assign"), accessHandler.AssignRole)
			users.DELETE("/:id/roles/:roleID", middleware.RequirePermission(resolver, "role:assign"), accessHandler.RevokeRole)
		}
	}

	return nil
}

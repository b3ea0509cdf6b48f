package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/handlers"
	"github.com/arialabs/aria-admin/internal/middleware"
	"github.com/arialabs/aria-admin/internal/models"
	"github.com/arialabs/aria-admin/internal/policy"
)

func registerPolicyRoutes(api *gin.RouterGroup, db *gorm.DB, auditSvc *audit.Service, resolver *policy.Resolver) error {
	policyHandler, err := handlers.NewPolicyHandler(db, auditSvc)
	if err != nil {
		return err
	}

	pol := api.Group("/policy")
	{
		pol.GET("/permissions", middleware.RequirePermission(resolver, "role:read"), policyHandler.ListPermissions)
		pol.POST("/validate", middleware.RequirePermission(resolver, "role:update"), policyHandler.ValidateDependencies)

		roles := pol.Group("/roles")
		{
			roles.GET("", middleware.RequirePermission(resolver, "role:read"), policyHandler.ListRoles)
			roles.POST("", middleware.RequirePermission(resolver, "role:create"), policyHandler.CreateRole)
			roles.PATCH("/:id", middleware.RequirePermission(resolver, "role:update"), policyHandler.UpdateRole)
			roles.DELETE("/:id", middleware.RequirePermission(resolver, "role:delete"), policyHandler.DeleteRole)
			roles.POST("/:id/permissions", middleware.RequirePermission(resolver, "role:update"), policyHandler.SetRolePermissions)
			roles.POST("/resync-wildcard", middleware.RequirePermission(resolver, models.WildcardCode), policyHandler.ResyncWildcardRoles)
		}

		// Seeding and wildcard maintenance stay behind the wildcard gate:
		// only roles that grant everything may reshape the base policy.
		pol.POST("/initialize", middleware.RequirePermission(resolver, models.WildcardCode), policyHandler.Initialize)
	}

	return nil
}

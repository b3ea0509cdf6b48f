package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/handlers"
	"github.com/arialabs/aria-admin/internal/middleware"
	"github.com/arialabs/aria-admin/internal/policy"
)

func registerAuditRoutes(api *gin.RouterGroup, db *gorm.DB, resolver *policy.Resolver) error {
	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return err
	}

	aud := api.Group("/audit")
	{
		aud.GET("", middleware.RequirePermission(resolver, "audit:read"), auditHandler.List)
		aud.GET("/export", middleware.RequirePermission(resolver, "audit:export"), auditHandler.Export)
		aud.POST("/records", middleware.RequirePermission(resolver, "audit:write"), auditHandler.Ingest)
		aud.POST("/cleanup", middleware.RequirePermission(resolver, "audit:cleanup"), auditHandler.Cleanup)
		aud.POST("/suspicious", middleware.RequirePermission(resolver, "audit:detect"), auditHandler.DetectSuspiciousActivity)
	}

	return nil
}

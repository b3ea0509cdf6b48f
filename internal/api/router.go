package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/app"
	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/middleware"
	"github.com/arialabs/aria-admin/internal/policy"
)

// NewRouter builds the Gin engine, wires the global middleware chain and
// registers every route group. Identity is established once for the /api
// group; individual routes add permission gates on top.
func NewRouter(db *gorm.DB, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, db)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	resolver, err := policy.NewResolver(db)
	if err != nil {
		return nil, err
	}
	auditSvc, err := audit.NewService(db)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.Use(middleware.Identity())

	if err := registerPolicyRoutes(api, db, auditSvc, resolver); err != nil {
		return nil, err
	}
	if err := registerAccessRoutes(api, db, auditSvc, resolver); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, db, resolver); err != nil {
		return nil, err
	}

	return r, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/app"
	"github.com/arialabs/aria-admin/internal/database/testutil"
	"github.com/arialabs/aria-admin/internal/models"
	"github.com/arialabs/aria-admin/internal/policy"
)

type routerFixture struct {
	router *gin.Engine
	db     *gorm.DB

	admin  *models.User
	viewer *models.User
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	manager, err := policy.NewManager(db, nil)
	require.NoError(t, err)
	require.NoError(t, manager.InitializeSystemPolicy(context.Background()))

	admin := &models.User{Username: "admin", IsActive: true}
	require.NoError(t, db.Create(admin).Error)
	viewer := &models.User{Username: "viewer", IsActive: true}
	require.NoError(t, db.Create(viewer).Error)

	var superRole, viewerRole models.Role
	require.NoError(t, db.Where("code = ?", "super_admin").First(&superRole).Error)
	require.NoError(t, db.Where("code = ?", "viewer").First(&viewerRole).Error)

	_, err = manager.AssignRole(context.Background(), admin.ID, superRole.ID, 0)
	require.NoError(t, err)
	_, err = manager.AssignRole(context.Background(), viewer.ID, viewerRole.ID, 0)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.Port = 8000
	cfg.Audit.RetentionDays = 90
	cfg.Monitoring.Prometheus.Enabled = true

	router, err := NewRouter(db, cfg)
	require.NoError(t, err)

	return &routerFixture{router: router, db: db, admin: admin, viewer: viewer}
}

func (f *routerFixture) do(method, path string, actor *models.User, body any) *httptest.ResponseRecorder {
	var payload *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("X-Actor-ID", fmt.Sprintf("%d", actor.ID))
		req.Header.Set("X-Actor-Name", actor.Username)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// No forwarded identity at all.
	rec = f.do(http.MethodGet, "/api/policy/roles", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Viewer lacks role:read.
	rec = f.do(http.MethodGet, "/api/policy/roles", f.viewer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/policy/roles", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRoleLifecycle(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/policy/roles", f.admin, gin.H{
		"code":  "content_editor",
		"name":  "Content Editor",
		"level": 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data models.Role `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.Data.ID)

	rec = f.do(http.MethodPost, fmt.Sprintf("/api/policy/roles/%d/permissions", created.Data.ID), f.admin, gin.H{
		"permissions": []string{"intent:read", "intent:update"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, fmt.Sprintf("/api/access/users/%d/roles", f.viewer.ID), f.admin, gin.H{
		"role_id": created.Data.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The viewer can now check their own effective permissions.
	rec = f.do(http.MethodGet, "/api/access/my/permissions", f.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var mine struct {
		Data policy.Resolution `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Contains(t, mine.Data.Permissions, "intent:update")

	rec = f.do(http.MethodDelete, fmt.Sprintf("/api/access/users/%d/roles/%d", f.viewer.ID, created.Data.ID), f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCheckEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/access/check", f.viewer, gin.H{
		"user_id":     f.viewer.ID,
		"permissions": []string{"intent:read"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Data["has_permission"])

	// Unknown users read as a plain deny, not an error.
	rec = f.do(http.MethodPost, "/api/access/check", f.viewer, gin.H{
		"user_id":     99999,
		"permissions": []string{"intent:read"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Data["has_permission"])
}

func TestRouterAuditFlow(t *testing.T) {
	f := newRouterFixture(t)

	// External collaborators push login events through the ingestion route.
	rec := f.do(http.MethodPost, "/api/audit/records", f.admin, gin.H{
		"action":         "auth.login",
		"operation_type": models.OpUserLogin,
		"resource_name":  "admin",
		"success":        false,
		"ip_address":     "198.51.100.7",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/api/audit", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Viewer holds no audit permissions at all.
	rec = f.do(http.MethodGet, "/api/audit", f.viewer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Retention below the floor is rejected.
	rec = f.do(http.MethodPost, "/api/audit/cleanup", f.admin, gin.H{"days": 10})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/audit/cleanup", f.admin, gin.H{"days": 90})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/audit/suspicious", f.admin, gin.H{"failure_threshold": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var scan struct {
		Data struct {
			Findings []map[string]any `json:"findings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scan))
	require.NotEmpty(t, scan.Data.Findings)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	// A gated request first, so the permission check counter has a series.
	rec := f.do(http.MethodGet, "/api/policy/roles", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "aria_permission_checks_total")
}

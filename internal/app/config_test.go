package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "aria", cfg.Database.Postgres.Database)

	require.Equal(t, 120, cfg.Audit.RetentionDays)
	require.Equal(t, "30 2 * * *", cfg.Audit.CleanupSchedule)
	require.False(t, cfg.Audit.Scan.Enabled)
	require.Equal(t, "@every 30m", cfg.Audit.Scan.Schedule)
	require.Equal(t, 12, cfg.Audit.Detection.WindowHours)
	require.Equal(t, 8, cfg.Audit.Detection.FailureThreshold)
	require.Equal(t, 200, cfg.Audit.Detection.RapidAccessThreshold)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)

	dbCfg := cfg.DatabaseOptions()
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.example.com", dbCfg.Host)
	require.Equal(t, "aria", dbCfg.User)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 90, cfg.Audit.RetentionDays)
	require.Equal(t, "0 3 * * *", cfg.Audit.CleanupSchedule)
	require.True(t, cfg.Audit.Scan.Enabled)
	require.Equal(t, 24, cfg.Audit.Detection.WindowHours)
	require.Equal(t, 5, cfg.Audit.Detection.FailureThreshold)
	require.Equal(t, 50, cfg.Audit.Detection.RapidAccessThreshold)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ARIA_SERVER_PORT", "7001")
	t.Setenv("ARIA_AUDIT_RETENTION_DAYS", "45")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7001, cfg.Server.Port)
	require.Equal(t, 45, cfg.Audit.RetentionDays)
}

func TestConfigValidateRejectsShortRetention(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.Audit.RetentionDays = 10

	require.Error(t, cfg.Validate())

	cfg.Audit.RetentionDays = 30
	require.NoError(t, cfg.Validate())
}

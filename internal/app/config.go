package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/internal/database"
)

// Config represents the runtime configuration for the Aria admin backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuditConfig controls retention of the operation log and the scheduled
// anomaly scan.
type AuditConfig struct {
	RetentionDays   int             `mapstructure:"retention_days"`
	CleanupSchedule string          `mapstructure:"cleanup_schedule"`
	Scan            ScanConfig      `mapstructure:"scan"`
	Detection       DetectionConfig `mapstructure:"detection"`
}

// ScanConfig toggles the recurring suspicious-activity scan.
type ScanConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// DetectionConfig tunes the anomaly detectors. Zero values fall back to the
// detector defaults.
type DetectionConfig struct {
	WindowHours          int `mapstructure:"window_hours"`
	FailureThreshold     int `mapstructure:"failure_threshold"`
	RapidAccessThreshold int `mapstructure:"rapid_access_threshold"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the rest of the system would refuse at
// runtime anyway, so the operator finds out at startup.
func (c *Config) Validate() error {
	if c.Audit.RetentionDays < audit.RetentionFloorDays {
		return fmt.Errorf("config: audit.retention_days must be at least %d, got %d",
			audit.RetentionFloorDays, c.Audit.RetentionDays)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/aria-admin.sqlite")

	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.cleanup_schedule", "0 3 * * *")
	v.SetDefault("audit.scan.enabled", true)
	v.SetDefault("audit.scan.schedule", "@hourly")
	v.SetDefault("audit.detection.window_hours", 24)
	v.SetDefault("audit.detection.failure_threshold", 5)
	v.SetDefault("audit.detection.rapid_access_threshold", 50)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseOptions maps the configuration onto the database layer's options
// for the selected driver.
func (c *Config) DatabaseOptions() database.Config {
	out := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Database.Driver)),
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}

	switch out.Driver {
	case "postgres", "postgresql":
		out.Host, out.Port = c.Database.Postgres.Host, c.Database.Postgres.Port
		out.Name, out.User, out.Password = c.Database.Postgres.Database, c.Database.Postgres.Username, c.Database.Postgres.Password
	case "mysql":
		out.Host, out.Port = c.Database.MySQL.Host, c.Database.MySQL.Port
		out.Name, out.User, out.Password = c.Database.MySQL.Database, c.Database.MySQL.Username, c.Database.MySQL.Password
	}
	return out
}

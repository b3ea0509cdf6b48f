package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/pkg/logger"
)

const (
	defaultCleanupSpec = "0 3 * * *"
	defaultScanSpec    = "@hourly"
)

// Cleaner coordinates background maintenance: enforcing the operation-log
// retention policy and running the recurring suspicious-activity scan.
type Cleaner struct {
	audit    *audit.Service
	detector *audit.Detector
	cron     *cron.Cron
	log      *zap.Logger

	retention   int
	scanOptions audit.ScanOptions
	scanEnabled bool

	cleanupSchedule string
	scanSchedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithRetentionDays adjusts how long operation records are retained.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCleanupSchedule overrides the cron specification for retention enforcement.
func WithCleanupSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cleanupSchedule = spec
		}
	}
}

// WithScan enables the recurring anomaly scan with the given tuning.
func WithScan(spec string, opts audit.ScanOptions) Option {
	return func(cleaner *Cleaner) {
		cleaner.scanEnabled = true
		if spec != "" {
			cleaner.scanSchedule = spec
		}
		cleaner.scanOptions = opts
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(auditSvc *audit.Service, detector *audit.Detector, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		audit:           auditSvc,
		detector:        detector,
		retention:       audit.DefaultRetentionDays,
		cleanupSchedule: defaultCleanupSpec,
		scanSchedule:    defaultScanSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.cleanupSchedule, func() {
			ctx := context.Background()
			removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
			if err != nil {
				c.log.Warn("audit retention cleanup failed", zap.Error(err))
				return
			}
			if removed > 0 {
				c.log.Info("audit retention cleanup",
					zap.Int64("removed", removed),
					zap.Int("retention_days", c.retention))
			}
		}); err != nil {
			return err
		}
	}

	if c.detector != nil && c.scanEnabled {
		if _, err := c.cron.AddFunc(c.scanSchedule, func() {
			c.runScan(context.Background())
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the configured jobs sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.detector != nil && c.scanEnabled {
		c.runScan(ctx)
	}

	return errs
}

func (c *Cleaner) runScan(ctx context.Context) {
	report, err := c.detector.Scan(ctx, c.scanOptions)
	if err != nil {
		c.log.Warn("suspicious activity scan failed", zap.Error(err))
		return
	}
	if len(report.Findings) == 0 {
		return
	}

	c.log.Warn("suspicious activity detected",
		zap.Int("findings", len(report.Findings)),
		zap.Int("high", report.Summary.High),
		zap.Int("medium", report.Summary.Medium),
		zap.Time("window_start", report.WindowStart))
	for _, finding := range report.Findings {
		c.log.Warn("suspicious activity finding",
			zap.String("type", finding.Type),
			zap.String("severity", finding.Severity),
			zap.String("description", finding.Description),
			zap.Int64("count", finding.Count),
			zap.Time("last_seen", finding.LastSeen))
	}
}

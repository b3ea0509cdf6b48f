package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/metrics"
)

// Finding severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Finding types.
const (
	FindingRepeatedLoginFailures = "REPEATED_LOGIN_FAILURES"
	FindingRapidAccess           = "RAPID_ACCESS"
	FindingPrivilegeEscalation   = "PRIVILEGE_ESCALATION"
)

// Detection defaults, overridable per scan.
const (
	DefaultWindow               = 24 * time.Hour
	DefaultFailureThreshold     = 5
	DefaultRapidAccessThreshold = 50
)

var escalationOperationTypes = []string{
	models.OpRoleAssign,
	models.OpRoleRevoke,
	models.OpPermissionGrant,
}

// ScanOptions tunes a single detector run. Zero values fall back to defaults.
type ScanOptions struct {
	Window               time.Duration
	FailureThreshold     int
	RapidAccessThreshold int
}

// Finding describes one anomalous pattern surfaced by a scan.
type Finding struct {
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	Description   string    `json:"description"`
	IPAddress     string    `json:"ip_address,omitempty"`
	ActorID       *uint64   `json:"actor_id,omitempty"`
	TargetAccount string    `json:"target_account,omitempty"`
	OperationType string    `json:"operation_type,omitempty"`
	Count         int64     `json:"count"`
	LastSeen      time.Time `json:"last_seen"`
}

// Summary counts findings by severity.
type Summary struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Report aggregates one scan's findings.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	Findings    []Finding `json:"findings"`
	Summary     Summary   `json:"summary"`
}

// Detector runs read-only grouped aggregate queries over the operation log.
// Scans are idempotent and safe to run concurrently with writers.
type Detector struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDetector constructs a Detector over the audit store.
func NewDetector(db *gorm.DB) (*Detector, error) {
	if db == nil {
		return nil, errors.New("audit detector: db is required")
	}
	return &Detector{db: db, now: time.Now}, nil
}

// WithClock overrides the detector clock, primarily for tests.
func (d *Detector) WithClock(clock func() time.Time) {
	if clock != nil {
		d.now = clock
	}
}

// Scan executes all three detectors over the trailing window and concatenates
// their findings.
func (d *Detector) Scan(ctx context.Context, opts ScanOptions) (*Report, error) {
	ctx = ensureContext(ctx)

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	failureThreshold := opts.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	rapidThreshold := opts.RapidAccessThreshold
	if rapidThreshold <= 0 {
		rapidThreshold = DefaultRapidAccessThreshold
	}

	now := d.now().UTC()
	since := now.Add(-window)

	report := &Report{
		GeneratedAt: now,
		WindowStart: since,
		Findings:    []Finding{},
	}

	loginFindings, err := d.repeatedLoginFailures(ctx, since, failureThreshold)
	if err != nil {
		return nil, err
	}
	rapidFindings, err := d.rapidAccess(ctx, since, rapidThreshold)
	if err != nil {
		return nil, err
	}
	escalationFindings, err := d.privilegeEscalations(ctx, since)
	if err != nil {
		return nil, err
	}

	report.Findings = append(report.Findings, loginFindings...)
	report.Findings = append(report.Findings, rapidFindings...)
	report.Findings = append(report.Findings, escalationFindings...)

	for _, finding := range report.Findings {
		switch finding.Severity {
		case SeverityHigh:
			report.Summary.High++
		case SeverityMedium:
			report.Summary.Medium++
		default:
			report.Summary.Low++
		}
		metrics.SuspiciousFindings.WithLabelValues(finding.Type, finding.Severity).Inc()
	}

	return report, nil
}

type failureGroup struct {
	IPAddress    string
	ResourceName string
	Total        int64
	LastSeen     time.Time
}

func (d *Detector) repeatedLoginFailures(ctx context.Context, since time.Time, threshold int) ([]Finding, error) {
	var groups []failureGroup
	if err := d.db.WithContext(ctx).
		Model(&models.AuditRecord{}).
		Select("ip_address, resource_name, COUNT(*) AS total, MAX(created_at) AS last_seen").
		Where("operation_type = ? AND success = ? AND created_at >= ?", models.OpUserLogin, false, since).
		Group("ip_address, resource_name").
		Having("COUNT(*) >= ?", threshold).
		Scan(&groups).Error; err != nil {
		return nil, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit detector: login failures: %w", err))
	}

	findings := make([]Finding, 0, len(groups))
	for _, group := range groups {
		findings = append(findings, Finding{
			Type:          FindingRepeatedLoginFailures,
			Severity:      SeverityHigh,
			Description:   fmt.Sprintf("%d failed logins for %q from %s", group.Total, group.ResourceName, group.IPAddress),
			IPAddress:     group.IPAddress,
			TargetAccount: group.ResourceName,
			Count:         group.Total,
			LastSeen:      group.LastSeen,
		})
	}
	return findings, nil
}

type accessGroup struct {
	IPAddress string
	ActorID   *uint64
	Total     int64
	LastSeen  time.Time
}

func (d *Detector) rapidAccess(ctx context.Context, since time.Time, threshold int) ([]Finding, error) {
	var groups []accessGroup
	if err := d.db.WithContext(ctx).
		Model(&models.AuditRecord{}).
		Select("ip_address, actor_id, COUNT(*) AS total, MAX(created_at) AS last_seen").
		Where("created_at >= ?", since).
		Group("ip_address, actor_id").
		Having("COUNT(*) >= ?", threshold).
		Scan(&groups).Error; err != nil {
		return nil, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit detector: rapid access: %w", err))
	}

	findings := make([]Finding, 0, len(groups))
	for _, group := range groups {
		findings = append(findings, Finding{
			Type:        FindingRapidAccess,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("%d requests from %s within the window", group.Total, group.IPAddress),
			IPAddress:   group.IPAddress,
			ActorID:     group.ActorID,
			Count:       group.Total,
			LastSeen:    group.LastSeen,
		})
	}
	return findings, nil
}

func (d *Detector) privilegeEscalations(ctx context.Context, since time.Time) ([]Finding, error) {
	var records []models.AuditRecord
	if err := d.db.WithContext(ctx).
		Where("operation_type IN ? AND created_at >= ?", escalationOperationTypes, since).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit detector: escalations: %w", err))
	}

	// Any role-change or permission-grant is notable on its own; no threshold.
	findings := make([]Finding, 0, len(records))
	for _, record := range records {
		findings = append(findings, Finding{
			Type:          FindingPrivilegeEscalation,
			Severity:      SeverityHigh,
			Description:   fmt.Sprintf("%s on %s %q by %s", record.OperationType, record.ResourceType, record.ResourceName, record.ActorName),
			IPAddress:     record.IPAddress,
			ActorID:       record.ActorID,
			OperationType: record.OperationType,
			Count:         1,
			LastSeen:      record.CreatedAt,
		})
	}
	return findings, nil
}

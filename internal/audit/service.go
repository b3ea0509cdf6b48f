package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/auditctx"
	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/logger"
	"github.com/arialabs/aria-admin/pkg/metrics"
)

// Retention bounds for the operation log.
const (
	RetentionFloorDays   = 30
	DefaultRetentionDays = 90
)

var knownOperationTypes = map[string]struct{}{
	models.OpUserLogin:       {},
	models.OpUserLogout:      {},
	models.OpRoleCreate:      {},
	models.OpRoleUpdate:      {},
	models.OpRoleDelete:      {},
	models.OpRoleAssign:      {},
	models.OpRoleRevoke:      {},
	models.OpPermissionGrant: {},
	models.OpPolicySeed:      {},
	models.OpDataCleanup:     {},
	models.OpResourceWrite:   {},
}

// Entry captures a single operation record to persist.
type Entry struct {
	RequestID     string
	ActorID       *uint64
	ActorName     string
	Action        string
	OperationType string
	ResourceType  string
	ResourceID    string
	ResourceName  string
	Success       bool
	IPAddress     string
	UserAgent     string
	OldValue      map[string]any
	NewValue      map[string]any
	ErrorText     string
}

// Filters encapsulates optional filters when querying the operation log.
type Filters struct {
	ActorID       *uint64
	OperationType string
	ResourceType  string
	Success       *bool
	IPAddress     string
	Since         *time.Time
	Until         *time.Time
}

// ListOptions controls pagination and filtering for log queries.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  Filters
}

// Service is the append-only sink for operation records. It validates shape
// and persists; it never updates rows.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewService constructs the audit sink using the provided database handle.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("audit: db is required")
	}
	return &Service{db: db, log: logger.WithModule("audit")}, nil
}

// Record validates and persists one entry. The caller decides whether a
// failure matters; business operations should prefer Submit.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	ctx = ensureContext(ctx)

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return apperrors.NewValidation("audit entry requires an action")
	}
	opType := strings.TrimSpace(entry.OperationType)
	if _, ok := knownOperationTypes[opType]; !ok {
		return apperrors.NewValidation(fmt.Sprintf("unknown operation type %q", opType))
	}

	oldValue, err := marshalSnapshot(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalSnapshot(entry.NewValue)
	if err != nil {
		return err
	}

	record := models.AuditRecord{
		RequestID:     strings.TrimSpace(entry.RequestID),
		ActorID:       entry.ActorID,
		ActorName:     strings.TrimSpace(entry.ActorName),
		Action:        action,
		OperationType: opType,
		ResourceType:  strings.TrimSpace(entry.ResourceType),
		ResourceID:    strings.TrimSpace(entry.ResourceID),
		ResourceName:  strings.TrimSpace(entry.ResourceName),
		Success:       entry.Success,
		IPAddress:     strings.TrimSpace(entry.IPAddress),
		UserAgent:     strings.TrimSpace(entry.UserAgent),
		OldValue:      oldValue,
		NewValue:      newValue,
		ErrorText:     entry.ErrorText,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit: persist record: %w", err))
	}
	return nil
}

// Submit persists the entry on a best-effort basis. A failed audit write is
// logged and dropped; it must never fail the operation it describes.
func (s *Service) Submit(ctx context.Context, entry Entry) {
	if err := s.Record(ctx, entry); err != nil {
		metrics.AuditWrites.WithLabelValues("dropped").Inc()
		s.log.Warn("audit record dropped",
			zap.String("action", entry.Action),
			zap.String("operation_type", entry.OperationType),
			zap.Error(err),
		)
		return
	}
	metrics.AuditWrites.WithLabelValues("ok").Inc()
}

// List returns paginated records ordered by creation time descending.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.AuditRecord, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditRecord
		total   int64
	)

	query := applyFilters(s.db.WithContext(ctx).Model(&models.AuditRecord{}), opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit: count records: %w", err))
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit: list records: %w", err))
	}

	return results, total, nil
}

// Export returns all records matching the filters without pagination.
func (s *Service) Export(ctx context.Context, filters Filters) ([]models.AuditRecord, error) {
	ctx = ensureContext(ctx)

	var records []models.AuditRecord
	if err := applyFilters(s.db.WithContext(ctx).Model(&models.AuditRecord{}), filters).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit: export records: %w", err))
	}

	return records, nil
}

// CleanupOlderThan removes records older than the supplied retention window.
// Retention shorter than the floor is rejected outright, never clamped.
func (s *Service) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays < RetentionFloorDays {
		return 0, apperrors.NewValidation(
			fmt.Sprintf("retention must be at least %d days (requested %d)", RetentionFloorDays, retentionDays))
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditRecord{})
	if result.Error != nil {
		return 0, apperrors.ErrUnavailable.WithInternal(fmt.Errorf("audit: cleanup records: %w", result.Error))
	}

	entry := Entry{
		Action:        "audit.cleanup",
		OperationType: models.OpDataCleanup,
		ResourceType:  "audit_record",
		Success:       true,
		NewValue: map[string]any{
			"retention_days": retentionDays,
			"removed":        result.RowsAffected,
		},
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		entry.RequestID = actor.RequestID
		if actor.ID != 0 {
			id := actor.ID
			entry.ActorID = &id
		}
		entry.ActorName = actor.Name
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}
	s.Submit(ctx, entry)

	return result.RowsAffected, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.OperationType != "" {
		query = query.Where("operation_type = ?", filters.OperationType)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if filters.IPAddress != "" {
		query = query.Where("ip_address = ?", filters.IPAddress)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

func marshalSnapshot(value map[string]any) (datatypes.JSON, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("audit snapshot is not serialisable: %v", err))
	}
	return datatypes.JSON(encoded), nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

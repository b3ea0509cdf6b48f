package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/audit"
	"github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/response"
	"github.com/arialabs/aria-admin/pkg/validator"
)

// AuditHandler exposes the operation log: ingestion for external
// collaborators, queries, retention cleanup, and anomaly scans.
type AuditHandler struct {
	svc      *audit.Service
	detector *audit.Detector
}

// NewAuditHandler wires an AuditHandler over the shared database handle.
func NewAuditHandler(db *gorm.DB) (*AuditHandler, error) {
	svc, err := audit.NewService(db)
	if err != nil {
		return nil, err
	}
	detector, err := audit.NewDetector(db)
	if err != nil {
		return nil, err
	}
	return &AuditHandler{svc: svc, detector: detector}, nil
}

type ingestRequest struct {
	RequestID     string         `json:"request_id"`
	ActorID       *uint64        `json:"actor_id"`
	ActorName     string         `json:"actor_name"`
	Action        string         `json:"action" validate:"required"`
	OperationType string         `json:"operation_type" validate:"required"`
	ResourceType  string         `json:"resource_type"`
	ResourceID    string         `json:"resource_id"`
	ResourceName  string         `json:"resource_name"`
	Success       bool           `json:"success"`
	IPAddress     string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	OldValue      map[string]any `json:"old_value"`
	NewValue      map[string]any `json:"new_value"`
	ErrorText     string         `json:"error_text"`
}

// POST /api/audit/records is the append-only ingestion point for external
// collaborators (auth gateway login events, CRUD middleware).
func (h *AuditHandler) Ingest(c *gin.Context) {
	var body ingestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, errors.NewValidation(err.Error()))
		return
	}

	entry := audit.Entry{
		RequestID:     body.RequestID,
		ActorID:       body.ActorID,
		ActorName:     body.ActorName,
		Action:        body.Action,
		OperationType: body.OperationType,
		ResourceType:  body.ResourceType,
		ResourceID:    body.ResourceID,
		ResourceName:  body.ResourceName,
		Success:       body.Success,
		IPAddress:     body.IPAddress,
		UserAgent:     body.UserAgent,
		OldValue:      body.OldValue,
		NewValue:      body.NewValue,
		ErrorText:     body.ErrorText,
	}
	if entry.IPAddress == "" {
		entry.IPAddress = c.ClientIP()
	}

	if err := h.svc.Record(requestContext(c), entry); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"recorded": true})
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	records, total, err := h.svc.List(requestContext(c), audit.ListOptions{
		Page:     page,
		PageSize: per,
		Filters:  queryFilters(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, records, &response.Meta{Page: page, PerPage: per, Total: int(total)})
}

// GET /api/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	records, err := h.svc.Export(requestContext(c), queryFilters(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}

type cleanupRequest struct {
	Days int `json:"days" validate:"required,gt=0"`
}

// POST /api/audit/cleanup
func (h *AuditHandler) Cleanup(c *gin.Context) {
	var body cleanupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.ErrBadRequest)
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, errors.NewValidation(err.Error()))
		return
	}

	removed, err := h.svc.CleanupOlderThan(requestContext(c), body.Days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

type detectRequest struct {
	WindowHours          int `json:"window_hours" validate:"gte=0,lte=720"`
	FailureThreshold     int `json:"failure_threshold" validate:"gte=0"`
	RapidAccessThreshold int `json:"rapid_access_threshold" validate:"gte=0"`
}

// POST /api/audit/suspicious
func (h *AuditHandler) DetectSuspiciousActivity(c *gin.Context) {
	var body detectRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, errors.ErrBadRequest)
			return
		}
		if err := validator.ValidateStruct(body); err != nil {
			response.Error(c, errors.NewValidation(err.Error()))
			return
		}
	}

	report, err := h.detector.Scan(requestContext(c), audit.ScanOptions{
		Window:               time.Duration(body.WindowHours) * time.Hour,
		FailureThreshold:     body.FailureThreshold,
		RapidAccessThreshold: body.RapidAccessThreshold,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

func queryFilters(c *gin.Context) audit.Filters {
	var filters audit.Filters

	if raw := c.Query("actor_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filters.ActorID = &id
		}
	}
	filters.OperationType = c.Query("operation_type")
	filters.ResourceType = c.Query("resource_type")
	filters.IPAddress = c.Query("ip")

	if raw := c.Query("success"); raw != "" {
		if ok, err := strconv.ParseBool(raw); err == nil {
			filters.Success = &ok
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	return filters
}

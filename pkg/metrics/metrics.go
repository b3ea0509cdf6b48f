package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// AuditWrites counts audit sink writes by outcome (ok|dropped).
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_audit_writes_total",
			Help: "Total number of audit record writes",
		},
		[]string{"result"},
	)

	// SuspiciousFindings counts detector findings by type and severity.
	SuspiciousFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aria_suspicious_findings_total",
			Help: "Total number of suspicious activity findings",
		},
		[]string{"type", "severity"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aria_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

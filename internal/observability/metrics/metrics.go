package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for backend calls
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeAuth        = "auth_required"
	OutcomeClientError = "client_error"
	OutcomeServerError = "server_error"
	OutcomeTransport   = "transport_error"
	OutcomeRejected    = "rejected"
)

// Config carries the constant labels attached to every series
type Config struct {
	ServiceName string
	Environment string
}

// Metrics holds the console's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	backendRequests  *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	referenceFailed  *prometheus.CounterVec
	approvalDecided  *prometheus.CounterVec
	lineItemEvents   *prometheus.CounterVec
	parentMismatches *prometheus.CounterVec
	openSessions     prometheus.Gauge
}

// New creates the collectors and registers them with registerer
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "logistics-console"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "console_backend_requests_total",
			Help:        "Backend REST calls by method, resource and outcome.",
			ConstLabels: constLabels,
		}, []string{"method", "resource", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "console_backend_request_duration_seconds",
			Help:        "Backend REST call latency.",
			Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			ConstLabels: constLabels,
		}, []string{"method", "resource"}),
		referenceFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "console_reference_unavailable_total",
			Help:        "Lookup kinds that fell back to placeholder labels.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		approvalDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "console_approval_decisions_total",
			Help:        "Server-confirmed approval decision changes.",
			ConstLabels: constLabels,
		}, []string{"document_type", "to"}),
		lineItemEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "console_line_item_mutations_total",
			Help:        "Committed line-item mutations.",
			ConstLabels: constLabels,
		}, []string{"document_type", "op"}),
		parentMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "console_line_item_parent_mismatch_total",
			Help:        "Line rows dropped because they belonged to another document.",
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "console_open_sessions",
			Help:        "Document edit sessions currently open.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.backendRequests,
		m.backendLatency,
		m.referenceFailed,
		m.approvalDecided,
		m.lineItemEvents,
		m.parentMismatches,
		m.openSessions,
	)
	return m
}

// ObserveRequest records one backend call
func (m *Metrics) ObserveRequest(method, resource, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	resource = ResourceLabel(resource)
	m.backendRequests.WithLabelValues(method, resource, outcome).Inc()
	m.backendLatency.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// RecordReferenceUnavailable counts a lookup kind falling back to placeholders
func (m *Metrics) RecordReferenceUnavailable(kind string) {
	if m == nil {
		return
	}
	m.referenceFailed.WithLabelValues(kind).Inc()
}

// RecordDecision counts a confirmed approval change
func (m *Metrics) RecordDecision(documentType, to string) {
	if m == nil {
		return
	}
	m.approvalDecided.WithLabelValues(documentType, to).Inc()
}

// RecordLineItem counts a committed line-item mutation
func (m *Metrics) RecordLineItem(documentType, op string) {
	if m == nil {
		return
	}
	m.lineItemEvents.WithLabelValues(documentType, op).Inc()
}

// RecordParentMismatch counts filtered foreign rows
func (m *Metrics) RecordParentMismatch(documentType string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.parentMismatches.WithLabelValues(documentType).Add(float64(rows))
}

// SetOpenSessions reports the number of open edit sessions
func (m *Metrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// ResourceLabel keeps the first path segment so ids never become label values
func ResourceLabel(resource string) string {
	resource = strings.Trim(resource, "/")
	if i := strings.IndexByte(resource, '/'); i >= 0 {
		resource = resource[:i]
	}
	if resource == "" {
		return "root"
	}
	return resource
}

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the lifecycle engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	escalations  *prometheus.CounterVec
	violations   *prometheus.CounterVec
	approvals    *prometheus.CounterVec
	assignments  *prometheus.CounterVec
	atRisk       *prometheus.GaugeVec
	violated     *prometheus.GaugeVec
	scanDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_http_errors_total",
			Help: "HTTP error responses, by route and error code.",
		}, []string{"method", "route", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_status_transitions_total",
			Help: "Committed ticket status transitions.",
		}, []string{"from", "to"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_escalations_total",
			Help: "Committed escalations, by trigger.",
		}, []string{"trigger"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_sla_violations_total",
			Help: "SLA violation flags raised, by kind.",
		}, []string{"kind"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_approval_decisions_total",
			Help: "Approval workflow decisions, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_assignments_total",
			Help: "Ticket assignments, by mode.",
		}, []string{"mode"}),
		atRisk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ticket_sla_at_risk",
			Help: "Tickets inside the SLA risk window at the last scan.",
		}, []string{"tenant"}),
		violated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ticket_sla_violated",
			Help: "Open tickets past an SLA deadline at the last scan.",
		}, []string{"tenant"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticket_sla_scan_duration_seconds",
			Help:    "Duration of a full SLA scan pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.requests, m.latency, m.errors, m.transitions, m.escalations, m.violations,
			m.approvals, m.assignments, m.atRisk, m.violated, m.scanDuration,
		)
	}
	return m
}

// RecordRequest counts a served HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts an error response by its DomainError code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, route, code).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordEscalation(trigger string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(trigger).Inc()
}

func (m *Metrics) RecordViolation(kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordApproval(stage, outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) RecordAssignment(automatic bool) {
	if m == nil {
		return
	}
	mode := "manual"
	if automatic {
		mode = "auto"
	}
	m.assignments.WithLabelValues(mode).Inc()
}

// RecordScan stores the outcome of one tenant sweep.
func (m *Metrics) RecordScan(tenant string, atRisk, violated int, duration time.Duration) {
	if m == nil {
		return
	}
	m.atRisk.WithLabelValues(tenant).Set(float64(atRisk))
	m.violated.WithLabelValues(tenant).Set(float64(violated))
	m.scanDuration.Observe(duration.Seconds())
}

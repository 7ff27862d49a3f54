package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Issue results.
const (
	IssueOK          = "issued"
	IssueConflict    = "conflict"
	IssueInvalid     = "invalid_participant"
	IssueUnavailable = "store_unavailable"
	IssueError       = "error"
)

// Settlement outcomes.
const (
	SettlementClosed    = "closed"
	SettlementMerged    = "merged"
	SettlementDuplicate = "duplicate"
	SettlementUnknown   = "unknown_transaction"
	SettlementError     = "error"
)

// Metrics holds the service collectors.
type Metrics struct {
	TicketsIssued       *prometheus.CounterVec
	Settlements         *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Tests pass a fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicketsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_tickets_issued_total",
			Help: "Ticket issuance attempts, labeled by result",
		}, []string{"result"}),
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_settlements_total",
			Help: "Settlement callbacks processed, labeled by outcome",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parking_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// Issued counts one issuance attempt. A nil receiver is a no-op.
func (m *Metrics) Issued(result string) {
	if m == nil {
		return
	}
	m.TicketsIssued.WithLabelValues(result).Inc()
}

// Settled counts one reconciliation. A nil receiver is a no-op.
func (m *Metrics) Settled(outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
}

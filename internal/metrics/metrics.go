package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so components can run without instrumentation.
type Metrics struct {
	InterviewsStarted   prometheus.Counter
	InterviewsCompleted *prometheus.CounterVec
	DeliveryFailures    prometheus.Counter

	Allocations        *prometheus.CounterVec
	AllocationAttempts prometheus.Histogram

	MonitorOutcomes *prometheus.CounterVec
	OracleLatency   prometheus.Histogram
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InterviewsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "moniker_interviews_started_total",
			Help: "Interview sessions created",
		}),
		InterviewsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moniker_interviews_completed_total",
			Help: "Interview sessions completed by path",
		}, []string{"path"}), // path: "standard", "observer", "reset"
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "moniker_interview_delivery_failures_total",
			Help: "Interviews whose opening message could not be delivered",
		}),
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moniker_identifier_allocations_total",
			Help: "Identifier allocations by source",
		}, []string{"source"}), // source: "canonical", "random", "fallback"
		AllocationAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "moniker_identifier_allocation_attempts",
			Help:    "Candidate attempts needed per allocation",
			Buckets: []float64{1, 2, 3, 5, 8, 16, 32, 64},
		}),
		MonitorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moniker_protection_outcomes_total",
			Help: "Protection monitor decisions by outcome",
		}, []string{"outcome"}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "moniker_oracle_duration_seconds",
			Help:    "Latency of authorization oracle lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncStarted() {
	if m != nil {
		m.InterviewsStarted.Inc()
	}
}

func (m *Metrics) IncCompleted(path string) {
	if m != nil {
		m.InterviewsCompleted.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) IncDeliveryFailure() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

// ObserveAllocation records one successful allocation and how many candidate
// attempts it consumed.
func (m *Metrics) ObserveAllocation(source string, attempts int) {
	if m != nil {
		m.Allocations.WithLabelValues(source).Inc()
		m.AllocationAttempts.Observe(float64(attempts))
	}
}

func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.MonitorOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveOracleLatency(d time.Duration) {
	if m != nil {
		m.OracleLatency.Observe(d.Seconds())
	}
}

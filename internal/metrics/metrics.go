package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for attendance decisions.
type Metrics struct {
	// Attendance outcomes by reason
	AttendanceOutcome *prometheus.CounterVec

	// Full evaluation latency including store reads
	EvaluateLatency prometheus.Histogram

	// Matcher candidate pool size per evaluation
	CandidatePool prometheus.Histogram

	// Enrollment attempts by result
	EnrollmentOutcome *prometheus.CounterVec

	// Clearance computations by granted flag
	ClearanceOutcome *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttendanceOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_attendance_outcomes_total",
			Help: "Total attendance evaluations by outcome reason",
		}, []string{"reason"}), // reason: "accepted", "no_match", "ambiguous_match", "duplicate", ...

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_attendance_evaluate_duration_seconds",
			Help:    "Duration of attendance evaluation including candidate and record lookups",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CandidatePool: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_matcher_candidates",
			Help:    "Number of face profiles compared per evaluation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		EnrollmentOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_enrollments_total",
			Help: "Total enrollment attempts by result",
		}, []string{"result"}), // result: "primary", "secondary", "rejected"

		ClearanceOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_clearance_computations_total",
			Help: "Total weekly clearance computations by granted flag",
		}, []string{"granted"}),
	}
}

// IncrementOutcome records an attendance outcome.
func (m *Metrics) IncrementOutcome(reason string) {
	if m != nil {
		m.AttendanceOutcome.WithLabelValues(reason).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// ObserveCandidates records how many profiles the matcher compared.
func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.CandidatePool.Observe(float64(n))
	}
}

// IncrementEnrollment records an enrollment result.
func (m *Metrics) IncrementEnrollment(result string) {
	if m != nil {
		m.EnrollmentOutcome.WithLabelValues(result).Inc()
	}
}

// IncrementClearance records a clearance computation.
func (m *Metrics) IncrementClearance(granted bool) {
	if m == nil {
		return
	}
	label := "false"
	if granted {
		label = "true"
	}
	m.ClearanceOutcome.WithLabelValues(label).Inc()
}

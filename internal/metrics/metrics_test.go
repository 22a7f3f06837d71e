package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementOutcome("accepted")
	m.IncrementOutcome("accepted")
	m.IncrementOutcome("duplicate")
	m.IncrementClearance(true)
	m.IncrementClearance(false)
	m.IncrementClearance(false)
	m.IncrementEnrollment("primary")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttendanceOutcome.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttendanceOutcome.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClearanceOutcome.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClearanceOutcome.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrollmentOutcome.WithLabelValues("primary")))
}

func TestMetrics_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEvaluateLatency(15 * time.Millisecond)
	m.ObserveCandidates(12)

	count, err := testutil.GatherAndCount(reg, "facegate_attendance_evaluate_duration_seconds", "facegate_matcher_candidates")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementOutcome("accepted")
		m.ObserveEvaluateLatency(time.Second)
		m.ObserveCandidates(3)
		m.IncrementEnrollment("rejected")
		m.IncrementClearance(true)
	})
}

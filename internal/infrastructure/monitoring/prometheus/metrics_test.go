package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunMetrics(t *testing.T) (*RunMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewRunMetrics(c), c
}

func counterValue(t *testing.T, c MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	mf := findFamily(t, c, name)
	require.NotNil(t, mf, name)
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
				match = false
			}
		}
		if match {
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("no series of %s matches %v", name, labels)
	return 0
}

func TestRecordRun_Success(t *testing.T) {
	m, c := newTestRunMetrics(t)
	m.RecordRun(RunOutcome{
		Success:           true,
		Duration:          2 * time.Second,
		PairsScored:       6,
		UnmappedInstances: 2,
		UnmappedPercent:   12.5,
		FullyObsolete:     1,
		Dropped:           1,
		MatrixCases:       3,
	})

	assert.Equal(t, 1.0, counterValue(t, c, "test_unit_runs_total", map[string]string{"status": "success"}))
	assert.Equal(t, 6.0, counterValue(t, c, "test_unit_pairs_scored_total", nil))
	assert.Equal(t, 2.0, counterValue(t, c, "test_unit_unmapped_concepts_total", nil))
	assert.Equal(t, 1.0, counterValue(t, c, "test_unit_dropped_cases_total", nil))
	assert.Equal(t, 3.0, counterValue(t, c, "test_unit_matrix_cases", nil))
	assert.Equal(t, 12.5, counterValue(t, c, "test_unit_unmapped_percent", nil))
	assert.Greater(t, counterValue(t, c, "test_unit_last_success_timestamp_seconds", nil), 0.0)

	mf := findFamily(t, c, "test_unit_run_duration_seconds")
	require.NotNil(t, mf)
	assert.Equal(t, 2.0, mf.GetMetric()[0].GetHistogram().GetSampleSum())
}

func TestRecordRun_Failure(t *testing.T) {
	m, c := newTestRunMetrics(t)
	m.RecordRun(RunOutcome{Duration: time.Second})

	assert.Equal(t, 1.0, counterValue(t, c, "test_unit_runs_total", map[string]string{"status": "failure"}))
	assert.Nil(t, findFamily(t, c, "test_unit_last_success_timestamp_seconds"))
}

func TestRecordCache(t *testing.T) {
	m, c := newTestRunMetrics(t)
	m.RecordCache("redis", true)
	m.RecordCache("redis", true)
	m.RecordCache("redis", false)

	assert.Equal(t, 2.0, counterValue(t, c, "test_unit_cache_hits_total", map[string]string{"cache": "redis"}))
	assert.Equal(t, 1.0, counterValue(t, c, "test_unit_cache_misses_total", map[string]string{"cache": "redis"}))
}

func TestRecordPhaseSinkAndImport(t *testing.T) {
	m, c := newTestRunMetrics(t)
	m.RecordPhase("matrix", 500*time.Millisecond)
	m.RecordSinkFailure("kafka")
	m.RecordImport(42)

	mf := findFamily(t, c, "test_unit_phase_duration_seconds")
	require.NotNil(t, mf)
	assert.Equal(t, "matrix", mf.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 1.0, counterValue(t, c, "test_unit_sink_failures_total", map[string]string{"sink": "kafka"}))
	assert.Equal(t, 42.0, counterValue(t, c, "test_unit_ontology_terms_imported_total", nil))
}

func TestRunMetrics_NilReceiver(t *testing.T) {
	var m *RunMetrics
	assert.NotPanics(t, func() {
		m.RecordRun(RunOutcome{Success: true})
		m.RecordPhase("load", time.Second)
		m.RecordCache("redis", true)
		m.RecordSinkFailure("minio")
		m.RecordImport(1)
	})
}

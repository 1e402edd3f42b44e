package prometheus

import "time"

// DefaultRunDurationBuckets spans sub-second toy cohorts to multi-hour grids.
var DefaultRunDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 4 * 3600}

// RunMetrics holds every metric recorded by a similarity run.
type RunMetrics struct {
	RunsTotal              CounterVec
	RunDuration            HistogramVec
	PhaseDuration          HistogramVec
	PairsScoredTotal       CounterVec
	UnmappedConceptsTotal  CounterVec
	DroppedCasesTotal      CounterVec
	FullyObsoleteCases     GaugeVec
	CasesInMatrix          GaugeVec
	UnmappedPercent        GaugeVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	SinkFailuresTotal      CounterVec
	OntologyTermsImported  CounterVec
	LastSuccessfulRunEpoch GaugeVec
}

// NewRunMetrics registers the run metrics with collector.
func NewRunMetrics(collector MetricsCollector) *RunMetrics {
	return &RunMetrics{
		RunsTotal:              collector.RegisterCounter("runs_total", "Similarity runs by outcome", "status"),
		RunDuration:            collector.RegisterHistogram("run_duration_seconds", "Wall time of a similarity run", DefaultRunDurationBuckets),
		PhaseDuration:          collector.RegisterHistogram("phase_duration_seconds", "Wall time per pipeline phase", DefaultRunDurationBuckets, "phase"),
		PairsScoredTotal:       collector.RegisterCounter("pairs_scored_total", "Case pairs scored"),
		UnmappedConceptsTotal:  collector.RegisterCounter("unmapped_concepts_total", "Concept instances without ontology ancestors"),
		DroppedCasesTotal:      collector.RegisterCounter("dropped_cases_total", "Cases removed for undefined similarity"),
		FullyObsoleteCases:     collector.RegisterGauge("fully_obsolete_cases", "Cases of the last run with no mapped concept"),
		CasesInMatrix:          collector.RegisterGauge("matrix_cases", "Rows of the last written matrix"),
		UnmappedPercent:        collector.RegisterGauge("unmapped_percent", "Unmapped instances relative to mapped ones, last run"),
		CacheHitsTotal:         collector.RegisterCounter("cache_hits_total", "Ancestor closure cache hits", "cache"),
		CacheMissesTotal:       collector.RegisterCounter("cache_misses_total", "Ancestor closure cache misses", "cache"),
		SinkFailuresTotal:      collector.RegisterCounter("sink_failures_total", "Result sink failures", "sink"),
		OntologyTermsImported:  collector.RegisterCounter("ontology_terms_imported_total", "Terms written to the graph store"),
		LastSuccessfulRunEpoch: collector.RegisterGauge("last_success_timestamp_seconds", "Unix time of the last successful run"),
	}
}

// RunOutcome is the summary recorded once per run.
type RunOutcome struct {
	Success           bool
	Duration          time.Duration
	PairsScored       int
	UnmappedInstances int
	UnmappedPercent   float64
	FullyObsolete     int
	Dropped           int
	MatrixCases       int
}

// RecordRun records a finished run.  A nil receiver is a no-op.
func (m *RunMetrics) RecordRun(o RunOutcome) {
	if m == nil {
		return
	}
	status := "failure"
	if o.Success {
		status = "success"
		m.LastSuccessfulRunEpoch.WithLabelValues().Set(float64(time.Now().Unix()))
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues().Observe(o.Duration.Seconds())
	m.PairsScoredTotal.WithLabelValues().Add(float64(o.PairsScored))
	m.UnmappedConceptsTotal.WithLabelValues().Add(float64(o.UnmappedInstances))
	m.DroppedCasesTotal.WithLabelValues().Add(float64(o.Dropped))
	m.FullyObsoleteCases.WithLabelValues().Set(float64(o.FullyObsolete))
	m.CasesInMatrix.WithLabelValues().Set(float64(o.MatrixCases))
	m.UnmappedPercent.WithLabelValues().Set(o.UnmappedPercent)
}

// RecordPhase observes the duration of a named pipeline phase.
func (m *RunMetrics) RecordPhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordCache counts a cache lookup.
func (m *RunMetrics) RecordCache(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordSinkFailure counts a failed result sink.
func (m *RunMetrics) RecordSinkFailure(sink string) {
	if m == nil {
		return
	}
	m.SinkFailuresTotal.WithLabelValues(sink).Inc()
}

// RecordImport counts terms written by `ontology import`.
func (m *RunMetrics) RecordImport(terms int) {
	if m == nil {
		return
	}
	m.OntologyTermsImported.WithLabelValues().Add(float64(terms))
}

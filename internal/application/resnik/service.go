// Package resnik orchestrates a similarity run: annotation loading, IC
// weighting, the pairwise matrix and the hand-off to result sinks.
package resnik

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/prometheus"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const defaultProgressPercent = 10

// MatrixWriter persists a matrix to the local output path.
type MatrixWriter interface {
	WriteMatrix(path string, m *similarity.Matrix) error
}

// MatrixWriterFunc adapts a function to MatrixWriter.
type MatrixWriterFunc func(path string, m *similarity.Matrix) error

// WriteMatrix calls f.
func (f MatrixWriterFunc) WriteMatrix(path string, m *similarity.Matrix) error { return f(path, m) }

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the goroutines of the matrix phase.
func WithWorkers(n int) Option { return func(s *Service) { s.workers = n } }

// WithLookupWorkers bounds concurrent ancestor lookups.
func WithLookupWorkers(n int) Option {
	return func(s *Service) { s.loaderOpts = append(s.loaderOpts, cohort.WithLookupWorkers(n)) }
}

// WithConceptDelimiter sets the separator of the concept list column.
func WithConceptDelimiter(d string) Option {
	return func(s *Service) { s.loaderOpts = append(s.loaderOpts, cohort.WithConceptDelimiter(d)) }
}

// WithProgressPercent logs matrix progress every p percent; 0 disables it.
func WithProgressPercent(p int) Option { return func(s *Service) { s.progressPercent = p } }

// WithMetrics records run metrics.
func WithMetrics(m *prometheus.RunMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithSinks registers result sinks called by Export.
func WithSinks(sinks ...similarity.ReportSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service runs the similarity pipeline.  It is safe to reuse across runs.
type Service struct {
	provider        ontology.Provider
	writer          MatrixWriter
	loaderOpts      []cohort.LoaderOption
	workers         int
	progressPercent int
	metrics         *prometheus.RunMetrics
	sinks           []similarity.ReportSink
	logger          logging.Logger
	now             func() time.Time
}

// NewService creates a Service resolving concepts through provider and
// writing matrices with writer.
func NewService(provider ontology.Provider, writer MatrixWriter, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		provider:        provider,
		writer:          writer,
		progressPercent: defaultProgressPercent,
		logger:          logging.OrNop(logger).Named("resnik"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of Run.
type Result struct {
	RunID       string
	StartedAt   time.Time
	Cases       []*cohort.Case
	IC          *similarity.ICModel
	Matrix      *similarity.Matrix
	Diagnostics similarity.Diagnostics
}

// Run computes the similarity matrix of rows.  Phase one loads annotations,
// aggregates cases and builds the IC model; phase two scores the grid in
// parallel and drops cases with undefined similarity.
func (s *Service) Run(ctx context.Context, rows []cohort.Row) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With(logging.String("run_id", res.RunID))

	err := s.run(ctx, log, rows, res)
	res.Diagnostics.Duration = s.now().Sub(res.StartedAt)

	outcome := prometheus.RunOutcome{
		Success:           err == nil,
		Duration:          res.Diagnostics.Duration,
		PairsScored:       res.Diagnostics.PairsScored,
		UnmappedInstances: res.Diagnostics.UnmappedInstances,
		UnmappedPercent:   res.Diagnostics.UnmappedPercent,
		FullyObsolete:     len(res.Diagnostics.FullyObsoleteCases),
		Dropped:           len(res.Diagnostics.DroppedCases),
	}
	if res.Matrix != nil {
		outcome.MatrixCases = res.Matrix.Len()
	}
	s.metrics.RecordRun(outcome)

	if err != nil {
		log.Error("similarity run failed", logging.Err(err), logging.Duration("elapsed", res.Diagnostics.Duration))
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, log logging.Logger, rows []cohort.Row, res *Result) error {
	phase := s.now()
	ann, err := cohort.NewLoader(s.provider, log, s.loaderOpts...).Load(ctx, rows)
	if err != nil {
		return err
	}
	s.metrics.RecordPhase("load", s.now().Sub(phase))

	d := &res.Diagnostics
	d.MappedInstances = ann.Stats.MappedInstances
	d.UnmappedInstances = ann.Stats.UnmappedInstances
	d.UnmappedConcepts = ann.Stats.UnmappedConcepts
	d.UnmappedPercent = ann.Stats.UnmappedPercent

	if ann.Stats.SkippedRows > 0 {
		log.Warn("skipped rows without a case id or concept list", logging.Int("rows", ann.Stats.SkippedRows))
	}
	if d.UnmappedPercent > 0 {
		log.Warn(fmt.Sprintf("%.2f%% of concept values could not be matched to ancestors; check that the ontology release matches the annotation data", d.UnmappedPercent),
			logging.Int("unmapped_instances", d.UnmappedInstances),
			logging.Strings("unmapped_concepts", d.UnmappedConcepts),
		)
	}

	phase = s.now()
	res.Cases = cohort.Aggregate(ann.Instances)
	d.FullyObsoleteCases = cohort.FullyObsolete(res.Cases)
	if len(d.FullyObsoleteCases) > 0 {
		log.Warn("obsolete or unknown terms only, these cases have no similarity",
			logging.Strings("cases", d.FullyObsoleteCases))
	}

	res.IC, err = similarity.BuildIC(res.Cases)
	if err != nil {
		return err
	}
	s.metrics.RecordPhase("ic", s.now().Sub(phase))
	log.Debug("information content model built",
		logging.Int("concepts", res.IC.Len()),
		logging.Int("observations", res.IC.Total()),
	)

	n := len(res.Cases)
	log.Info(fmt.Sprintf("performing pairwise Resnik semantic similarity comparison for %d input IDs", n),
		logging.Int("pairs", n*(n-1)/2))

	phase = s.now()
	scorer := similarity.NewResnik(res.IC, ann.Closures())
	full, err := similarity.Build(ctx, res.Cases, scorer, similarity.BuildOptions{
		Workers:  s.workers,
		Progress: s.progress(log),
	})
	if err != nil {
		return err
	}
	d.PairsScored = n * (n - 1) / 2
	s.metrics.RecordPhase("matrix", s.now().Sub(phase))

	res.Matrix, d.DroppedCases = full.DropUndefined()
	if len(d.DroppedCases) > 0 {
		log.Warn("dropped cases with undefined similarity", logging.Strings("cases", d.DroppedCases))
	}
	if res.Matrix.Len() == 0 {
		return errors.New(errors.ErrCodeNoCases, "no case has a defined similarity to any other case")
	}
	return nil
}

// progress logs every progressPercent of scored pairs.  Build may call it
// from several goroutines.
func (s *Service) progress(log logging.Logger) similarity.ProgressFunc {
	step := s.progressPercent
	if step <= 0 {
		return nil
	}
	var last int64
	return func(done, total int) {
		if total == 0 {
			return
		}
		bucket := int64(done*100/total) / int64(step)
		for {
			prev := atomic.LoadInt64(&last)
			if bucket <= prev {
				return
			}
			if atomic.CompareAndSwapInt64(&last, prev, bucket) {
				log.Info("similarity progress",
					logging.Int("percent", int(bucket)*step),
					logging.Int("pairs_done", done),
					logging.Int("pairs_total", total),
				)
				return
			}
		}
	}
}

// ExportInput names the files of a run.
type ExportInput struct {
	InputPath  string
	OutputPath string
}

// Export writes the matrix locally and then hands the run to every sink.
// A failed write is returned immediately; sink failures are logged and
// returned together after all sinks have been tried.
func (s *Service) Export(ctx context.Context, res *Result, in ExportInput) error {
	log := s.logger.With(logging.String("run_id", res.RunID))

	if err := s.writer.WriteMatrix(in.OutputPath, res.Matrix); err != nil {
		return err
	}
	log.Info("analysis completed, data is saved to "+in.OutputPath,
		logging.Int("cases", res.Matrix.Len()),
		logging.Duration("elapsed", res.Diagnostics.Duration),
	)

	report := &similarity.RunReport{
		RunID:       res.RunID,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.StartedAt.Add(res.Diagnostics.Duration),
		InputPath:   in.InputPath,
		OutputPath:  in.OutputPath,
		Matrix:      res.Matrix,
		Diagnostics: res.Diagnostics,
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			log.Error("result sink failed", logging.String("sink", sink.Name()), logging.Err(err))
			s.metrics.RecordSinkFailure(sink.Name())
			errs = append(errs, err)
			continue
		}
		log.Debug("result published", logging.String("sink", sink.Name()))
	}
	return errors.Join(errs...)
}

package cohort

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const (
	defaultConceptDelimiter = ","
	defaultLookupWorkers    = 8
)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConceptDelimiter sets the separator of the concept list column.
func WithConceptDelimiter(d string) LoaderOption {
	return func(l *Loader) {
		if d != "" {
			l.delimiter = d
		}
	}
}

// WithLookupWorkers bounds concurrent Provider calls.  Remote providers
// benefit from more; the in-memory graph needs one.
func WithLookupWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// Loader explodes rows into instances and resolves each distinct concept's
// ancestor closure once.
type Loader struct {
	provider  ontology.Provider
	delimiter string
	workers   int
	logger    logging.Logger
}

// NewLoader creates a Loader backed by provider.
func NewLoader(provider ontology.Provider, logger logging.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		provider:  provider,
		delimiter: defaultConceptDelimiter,
		workers:   defaultLookupWorkers,
		logger:    logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load drops incomplete rows, splits concept lists, trims every token, skips
// empty tokens and attaches the ancestor closure of each instance.  Unmapped
// instances are kept (with empty Ancestors) so Aggregate can flag fully
// obsolete cases.
//
// It fails with ErrCodeNoCases when no row survives and with
// ErrCodeNoMappedConcepts when not a single concept could be mapped.
func (l *Loader) Load(ctx context.Context, rows []Row) (*Annotations, error) {
	ann := &Annotations{Stats: LoadStats{Rows: len(rows)}}

	for _, r := range rows {
		id := strings.TrimSpace(r.CaseID)
		list := strings.TrimSpace(r.Concepts)
		if id == "" || list == "" {
			ann.Stats.SkippedRows++
			l.logger.Debug("skipping incomplete row", logging.Int("line", r.Line))
			continue
		}
		for _, tok := range strings.Split(list, l.delimiter) {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			ann.Instances = append(ann.Instances, Instance{CaseID: id, Concept: tok})
		}
	}
	if len(ann.Instances) == 0 {
		return nil, errors.New(errors.ErrCodeNoCases, "input table contains no usable case annotations")
	}

	closures, err := l.resolve(ctx, ann.Instances)
	if err != nil {
		return nil, err
	}

	unmapped := make(map[string]struct{})
	for i := range ann.Instances {
		inst := &ann.Instances[i]
		inst.Ancestors = closures[inst.Concept]
		if inst.Mapped() {
			ann.Stats.MappedInstances++
		} else {
			ann.Stats.UnmappedInstances++
			unmapped[inst.Concept] = struct{}{}
		}
	}
	if ann.Stats.MappedInstances == 0 {
		return nil, errors.New(errors.ErrCodeNoMappedConcepts, "none of the input concepts could be mapped to the ontology").
			WithDetail("check that the catalog release matches the annotation data")
	}

	ann.Stats.UnmappedConcepts = make([]string, 0, len(unmapped))
	for c := range unmapped {
		ann.Stats.UnmappedConcepts = append(ann.Stats.UnmappedConcepts, c)
	}
	sort.Strings(ann.Stats.UnmappedConcepts)
	ann.Stats.UnmappedPercent = round2(100 * float64(ann.Stats.UnmappedInstances) / float64(ann.Stats.MappedInstances))

	l.logger.Debug("annotations loaded",
		logging.Int("rows", ann.Stats.Rows),
		logging.Int("instances", len(ann.Instances)),
		logging.Int("distinct_concepts", len(closures)),
	)
	return ann, nil
}

// resolve looks up each distinct concept once with bounded concurrency.
func (l *Loader) resolve(ctx context.Context, instances []Instance) (map[string]ontology.ConceptSet, error) {
	distinct := make([]string, 0)
	seen := make(map[string]struct{})
	for _, inst := range instances {
		if _, ok := seen[inst.Concept]; ok {
			continue
		}
		seen[inst.Concept] = struct{}{}
		distinct = append(distinct, inst.Concept)
	}

	var mu sync.Mutex
	out := make(map[string]ontology.ConceptSet, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, c := range distinct {
		c := c
		g.Go(func() error {
			anc, err := l.provider.Ancestors(gctx, c)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeOntologyQueryFailed, "ancestor lookup failed").WithDetail(c)
			}
			mu.Lock()
			out[c] = anc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

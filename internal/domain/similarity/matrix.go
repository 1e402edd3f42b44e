package similarity

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// ProgressFunc receives the number of scored pairs so far and the total.  It
// may be called concurrently.
type ProgressFunc func(done, total int)

// BuildOptions tunes Build.
type BuildOptions struct {
	// Workers bounds the goroutines scoring rows; 0 means runtime.NumCPU().
	Workers int
	// Progress is optional.
	Progress ProgressFunc
}

// Matrix is a square, symmetric case-by-case similarity table with a zero
// diagonal.  Undefined entries are tracked explicitly.
type Matrix struct {
	ids     []string
	values  *mat.SymDense
	defined []bool // n*n, row-major, mirrored
}

// Build scores every unordered pair of distinct cases once and mirrors the
// result.  Self-similarity is never computed; the diagonal is 0.
func Build(ctx context.Context, cases []*cohort.Case, scorer Scorer, opts BuildOptions) (*Matrix, error) {
	n := len(cases)
	m := newMatrix(idsOf(cases))
	if n == 0 {
		return m, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	total := n * (n - 1) / 2
	var done int64

	rows := make([][]Score, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			row := make([]Score, n-i-1)
			for k := range row {
				if err := gctx.Err(); err != nil {
					return err
				}
				row[k] = scorer.Score(cases[i].Concepts, cases[i+1+k].Concepts)
			}
			rows[i] = row
			if opts.Progress != nil && len(row) > 0 {
				opts.Progress(int(atomic.AddInt64(&done, int64(len(row)))), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			code := errors.ErrCodeCancelled
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				code = errors.ErrCodeTimeout
			}
			return nil, errors.Wrap(ctxErr, code, "similarity matrix computation interrupted")
		}
		return nil, errors.Wrap(err, errors.ErrCodeMatrixBuildFailed, "similarity matrix computation failed")
	}

	for i, row := range rows {
		for k, s := range row {
			m.set(i, i+1+k, s)
		}
	}
	return m, nil
}

func idsOf(cases []*cohort.Case) []string {
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return ids
}

func newMatrix(ids []string) *Matrix {
	n := len(ids)
	m := &Matrix{ids: ids, defined: make([]bool, n*n)}
	if n > 0 {
		m.values = mat.NewSymDense(n, nil)
	}
	for i := 0; i < n; i++ {
		m.defined[i*n+i] = true
	}
	return m
}

// NewMatrix assembles a matrix from explicit upper-triangle scores, keyed
// [i][j-i-1] for j > i.  It is mainly useful to sinks and tests.
func NewMatrix(ids []string, upper [][]Score) (*Matrix, error) {
	n := len(ids)
	if len(upper) != n {
		return nil, errors.Newf(errors.ErrCodeMatrixLabelMismatch, "%d labels for %d rows", n, len(upper))
	}
	m := newMatrix(append([]string(nil), ids...))
	for i, row := range upper {
		if len(row) != n-i-1 {
			return nil, errors.Newf(errors.ErrCodeMatrixLabelMismatch, "row %d has %d entries, want %d", i, len(row), n-i-1)
		}
		for k, s := range row {
			m.set(i, i+1+k, s)
		}
	}
	return m, nil
}

func (m *Matrix) set(i, j int, s Score) {
	n := len(m.ids)
	if s.Defined {
		m.values.SetSym(i, j, s.Value)
	}
	m.defined[i*n+j] = s.Defined
	m.defined[j*n+i] = s.Defined
}

// Len returns the number of cases on each axis.
func (m *Matrix) Len() int { return len(m.ids) }

// IDs returns the case ids in row order.
func (m *Matrix) IDs() []string { return append([]string(nil), m.ids...) }

// At returns entry (i, j).
func (m *Matrix) At(i, j int) Score {
	n := len(m.ids)
	if !m.defined[i*n+j] {
		return Undefined
	}
	return Defined(m.values.At(i, j))
}

// Symmetric exposes the defined values as a gonum matrix; undefined entries
// read as 0.  It returns nil for an empty matrix.
func (m *Matrix) Symmetric() mat.Symmetric {
	if m.values == nil {
		return nil
	}
	return m.values
}

// UndefinedCount returns how many off-diagonal entries of row i are undefined.
func (m *Matrix) UndefinedCount(i int) int {
	n := len(m.ids)
	c := 0
	for j := 0; j < n; j++ {
		if !m.defined[i*n+j] {
			c++
		}
	}
	return c
}

// DropUndefined removes cases until every remaining entry is defined.  The
// case with the most undefined entries goes first, ties resolved towards the
// later case.  It returns the reduced matrix and the dropped ids in removal
// order; the receiver is not modified.
func (m *Matrix) DropUndefined() (*Matrix, []string) {
	n := len(m.ids)
	alive := make([]bool, n)
	counts := make([]int, n)
	for i := range alive {
		alive[i] = true
		counts[i] = m.UndefinedCount(i)
	}

	var dropped []string
	for {
		worst := -1
		for i := 0; i < n; i++ {
			if alive[i] && counts[i] > 0 && (worst < 0 || counts[i] >= counts[worst]) {
				worst = i
			}
		}
		if worst < 0 {
			break
		}
		alive[worst] = false
		dropped = append(dropped, m.ids[worst])
		for j := 0; j < n; j++ {
			if alive[j] && !m.defined[worst*n+j] {
				counts[j]--
			}
		}
	}
	if len(dropped) == 0 {
		return m, nil
	}

	keep := make([]int, 0, n-len(dropped))
	for i, ok := range alive {
		if ok {
			keep = append(keep, i)
		}
	}
	ids := make([]string, len(keep))
	for a, i := range keep {
		ids[a] = m.ids[i]
	}
	out := newMatrix(ids)
	for a := range keep {
		for b := a + 1; b < len(keep); b++ {
			out.set(a, b, m.At(keep[a], keep[b]))
		}
	}
	return out, dropped
}

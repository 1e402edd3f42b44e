package similarity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

func TestBuild_DiagonalZeroAndSymmetric(t *testing.T) {
	f := load(t,
		cohort.Row{CaseID: "x", Concepts: "C"},
		cohort.Row{CaseID: "y", Concepts: "B"},
		cohort.Row{CaseID: "z", Concepts: "A,B"},
	)

	var (
		mu    sync.Mutex
		calls []int
	)
	m, err := Build(context.Background(), f.cases, f.scorer, BuildOptions{
		Workers: 2,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 3, total)
			calls = append(calls, done)
		},
	})
	require.NoError(t, err)

	require.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"x", "y", "z"}, m.IDs())
	for i := 0; i < m.Len(); i++ {
		assert.Equal(t, Defined(0), m.At(i, i))
		for j := 0; j < m.Len(); j++ {
			assert.Equal(t, m.At(i, j), m.At(j, i))
		}
	}

	icR, _ := f.ic.IC("R")
	assert.InDelta(t, icR, m.At(0, 1).Value, eps)
	assert.Equal(t, f.scorer.Score(f.cases[1].Concepts, f.cases[2].Concepts), m.At(1, 2))

	require.NotEmpty(t, calls)
	highest := 0
	for _, c := range calls {
		if c > highest {
			highest = c
		}
	}
	assert.Equal(t, 3, highest, "progress must reach the total")
	assert.Equal(t, 3, m.Symmetric().SymmetricDim())
}

// countingScorer records which pairs were scored.
type countingScorer struct {
	mu    sync.Mutex
	pairs int
	self  int
}

func (c *countingScorer) Score(a, b []string) Score {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs++
	if len(a) > 0 && len(b) > 0 && &a[0] == &b[0] {
		c.self++
	}
	return Defined(1)
}

func TestBuild_ScoresUpperTriangleOnly(t *testing.T) {
	cases := []*cohort.Case{
		{ID: "a", Concepts: []string{"1"}},
		{ID: "b", Concepts: []string{"2"}},
		{ID: "c", Concepts: []string{"3"}},
		{ID: "d", Concepts: []string{"4"}},
	}
	sc := &countingScorer{}
	m, err := Build(context.Background(), cases, sc, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, sc.pairs)
	assert.Zero(t, sc.self)
	assert.Equal(t, Defined(1), m.At(3, 0))
}

func TestBuild_EmptyAndSingle(t *testing.T) {
	m, err := Build(context.Background(), nil, &countingScorer{}, BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, m.Len())
	assert.Nil(t, m.Symmetric())

	m, err = Build(context.Background(), []*cohort.Case{{ID: "solo", Concepts: []string{"A"}}}, &countingScorer{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, Defined(0), m.At(0, 0))
}

type slowScorer struct{}

func (slowScorer) Score(_, _ []string) Score {
	time.Sleep(5 * time.Millisecond)
	return Defined(1)
}

func TestBuild_Cancelled(t *testing.T) {
	cases := make([]*cohort.Case, 40)
	for i := range cases {
		cases[i] = &cohort.Case{ID: string(rune('A' + i)), Concepts: []string{"x"}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, cases, slowScorer{}, BuildOptions{Workers: 2})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCancelled))

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Build(ctx, cases, slowScorer{}, BuildOptions{Workers: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

func TestDropUndefined_RemovesFullyObsoleteCaseOnly(t *testing.T) {
	f := load(t,
		cohort.Row{CaseID: "x", Concepts: "C"},
		cohort.Row{CaseID: "ghost", Concepts: "HP:OBSOLETE"},
		cohort.Row{CaseID: "y", Concepts: "B"},
	)
	require.True(t, f.cases[1].FullyObsolete)

	m, err := Build(context.Background(), f.cases, f.scorer, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, m.UndefinedCount(1))
	assert.Equal(t, 1, m.UndefinedCount(0))

	out, dropped := m.DropUndefined()
	assert.Equal(t, []string{"ghost"}, dropped)
	assert.Equal(t, []string{"x", "y"}, out.IDs())
	assert.True(t, out.At(0, 1).Defined)
	assert.Equal(t, 3, m.Len(), "receiver is untouched")
}

func TestDropUndefined_Greedy(t *testing.T) {
	u, d := Undefined, Defined(2)
	// a-b undefined, b-c undefined, a-c defined: dropping b suffices.
	m, err := NewMatrix([]string{"a", "b", "c"}, [][]Score{{u, d}, {u}, {}})
	require.NoError(t, err)

	out, dropped := m.DropUndefined()
	assert.Equal(t, []string{"b"}, dropped)
	assert.Equal(t, []string{"a", "c"}, out.IDs())
	assert.Equal(t, d, out.At(0, 1))

	// Tie between two cases: the later one goes.
	m, err = NewMatrix([]string{"a", "b"}, [][]Score{{u}, {}})
	require.NoError(t, err)
	out, dropped = m.DropUndefined()
	assert.Equal(t, []string{"b"}, dropped)
	assert.Equal(t, []string{"a"}, out.IDs())
}

func TestDropUndefined_NoOp(t *testing.T) {
	m, err := NewMatrix([]string{"a", "b"}, [][]Score{{Defined(1)}, {}})
	require.NoError(t, err)
	out, dropped := m.DropUndefined()
	assert.Nil(t, dropped)
	assert.Same(t, m, out)
}

func TestNewMatrix_ShapeErrors(t *testing.T) {
	_, err := NewMatrix([]string{"a"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMatrixLabelMismatch))

	_, err = NewMatrix([]string{"a", "b"}, [][]Score{{}, {}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMatrixLabelMismatch))
}

package cohort

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// R <- A, R <- B, C disjoint; HP:OLD is unmapped.
var testClosures = map[string]ontology.ConceptSet{
	"R": {"R"},
	"A": {"A", "R"},
	"B": {"B", "R"},
	"C": {"C"},
}

func mapProvider(calls *int64) ontology.Provider {
	return ontology.ProviderFunc(func(_ context.Context, id string) (ontology.ConceptSet, error) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}
		return testClosures[id], nil
	})
}

func TestLoader_ExplodesTrimsAndSkips(t *testing.T) {
	var calls int64
	l := NewLoader(mapProvider(&calls), nil)

	ann, err := l.Load(context.Background(), []Row{
		{CaseID: "p1", Concepts: " A , B,,A ", Line: 2},
		{CaseID: "", Concepts: "A", Line: 3},
		{CaseID: "p2", Concepts: "  ", Line: 4},
		{CaseID: "p3", Concepts: "C,OLD", Line: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, ann.Stats.Rows)
	assert.Equal(t, 2, ann.Stats.SkippedRows)
	require.Len(t, ann.Instances, 5)
	assert.Equal(t, Instance{CaseID: "p1", Concept: "A", Ancestors: ontology.ConceptSet{"A", "R"}}, ann.Instances[0])
	assert.Equal(t, "p3", ann.Instances[4].CaseID)
	assert.False(t, ann.Instances[4].Mapped())

	assert.Equal(t, 4, ann.Stats.MappedInstances)
	assert.Equal(t, 1, ann.Stats.UnmappedInstances)
	assert.Equal(t, []string{"OLD"}, ann.Stats.UnmappedConcepts)
	assert.Equal(t, 25.0, ann.Stats.UnmappedPercent)
	assert.Equal(t, int64(4), calls, "each distinct concept is resolved once")
}

func TestLoader_CustomDelimiter(t *testing.T) {
	l := NewLoader(mapProvider(nil), nil, WithConceptDelimiter(";"), WithLookupWorkers(1))
	ann, err := l.Load(context.Background(), []Row{{CaseID: "x", Concepts: "A;B"}})
	require.NoError(t, err)
	assert.Len(t, ann.Instances, 2)
	assert.Zero(t, ann.Stats.UnmappedPercent)
}

func TestLoader_UnmappedPercentRounding(t *testing.T) {
	l := NewLoader(mapProvider(nil), nil)
	ann, err := l.Load(context.Background(), []Row{{CaseID: "x", Concepts: "A,B,C,X1"}})
	require.NoError(t, err)
	assert.Equal(t, 33.33, ann.Stats.UnmappedPercent)
}

func TestLoader_Errors(t *testing.T) {
	l := NewLoader(mapProvider(nil), nil)

	_, err := l.Load(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoCases))

	_, err = l.Load(context.Background(), []Row{{CaseID: "x", Concepts: " , "}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoCases))

	_, err = l.Load(context.Background(), []Row{{CaseID: "x", Concepts: "OLD,GONE"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoMappedConcepts))

	failing := ontology.ProviderFunc(func(context.Context, string) (ontology.ConceptSet, error) {
		return nil, fmt.Errorf("connection refused")
	})
	_, err = NewLoader(failing, nil).Load(context.Background(), []Row{{CaseID: "x", Concepts: "A"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOntologyQueryFailed))
}

func TestAggregate_GroupsInFirstAppearanceOrder(t *testing.T) {
	l := NewLoader(mapProvider(nil), nil)
	ann, err := l.Load(context.Background(), []Row{
		{CaseID: "zeta", Concepts: "B"},
		{CaseID: "alpha", Concepts: "A,A"},
		{CaseID: "zeta", Concepts: "A,C"},
		{CaseID: "ghost", Concepts: "OLD"},
	})
	require.NoError(t, err)

	cases := Aggregate(ann.Instances)
	require.Len(t, cases, 3)

	assert.Equal(t, "zeta", cases[0].ID)
	assert.Equal(t, ontology.ConceptSet{"A", "B", "C"}, cases[0].Concepts)
	assert.Equal(t, ontology.ConceptSet{"A", "B", "C", "R"}, cases[0].AncestorSet)
	assert.Equal(t, []string{"B", "A", "C"}, cases[0].Raw)

	assert.Equal(t, "alpha", cases[1].ID)
	assert.Equal(t, ontology.ConceptSet{"A"}, cases[1].Concepts)
	assert.Equal(t, []string{"A", "A"}, cases[1].Raw)

	ghost := cases[2]
	assert.True(t, ghost.FullyObsolete)
	assert.Empty(t, ghost.Concepts)
	assert.Empty(t, ghost.AncestorSet)
	assert.Equal(t, []string{"ghost"}, FullyObsolete(cases))
}

func TestAggregate_ConceptsSubsetOfAncestors(t *testing.T) {
	instances := []Instance{
		{CaseID: "a", Concept: "A", Ancestors: testClosures["A"]},
		{CaseID: "a", Concept: "C", Ancestors: testClosures["C"]},
		{CaseID: "b", Concept: "B", Ancestors: testClosures["B"]},
		{CaseID: "b", Concept: "OLD"},
	}
	for _, c := range Aggregate(instances) {
		for _, id := range c.Concepts {
			assert.True(t, c.AncestorSet.Contains(id), "%s: %s", c.ID, id)
		}
		assert.False(t, c.FullyObsolete)
	}
}

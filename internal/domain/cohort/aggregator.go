package cohort

import "github.com/bbowles1/HIPPO/internal/domain/ontology"

// Aggregate regroups instances per case in order of first appearance.
//
// Concepts keeps the distinct mapped ids; AncestorSet is the union of those
// ids and their closures.  A case whose every instance is unmapped is kept
// with empty sets and FullyObsolete set, so that it surfaces as undefined in
// the similarity matrix rather than silently disappearing.
func Aggregate(instances []Instance) []*Case {
	index := make(map[string]int)
	var (
		cases     []*Case
		concepts  [][]string
		ancestors []ontology.ConceptSet
	)

	for _, inst := range instances {
		i, ok := index[inst.CaseID]
		if !ok {
			i = len(cases)
			index[inst.CaseID] = i
			cases = append(cases, &Case{ID: inst.CaseID})
			concepts = append(concepts, nil)
			ancestors = append(ancestors, nil)
		}
		c := cases[i]
		c.Raw = append(c.Raw, inst.Concept)
		if !inst.Mapped() {
			continue
		}
		concepts[i] = append(concepts[i], inst.Concept)
		ancestors[i] = ancestors[i].Union(inst.Ancestors)
	}

	for i, c := range cases {
		c.Concepts = ontology.NewConceptSet(concepts[i]...)
		c.AncestorSet = ancestors[i].Union(c.Concepts)
		if c.AncestorSet.Empty() {
			c.AncestorSet = nil
		}
		c.FullyObsolete = c.Concepts.Empty()
	}
	return cases
}

// FullyObsolete returns the ids of flagged cases in case order.
func FullyObsolete(cases []*Case) []string {
	var ids []string
	for _, c := range cases {
		if c.FullyObsolete {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

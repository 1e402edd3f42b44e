// Package similarity implements corpus information content, Resnik simMax
// scoring between concept sets and the pairwise case matrix.
package similarity

import (
	"math"
	"sort"

	"github.com/bbowles1/HIPPO/internal/domain/cohort"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// ICModel maps each observed concept to its information content
// -log2(count/total), where count is the number of cases whose ancestor set
// contains the concept and total is the size of the corpus multiset.
// It is immutable after BuildIC and safe for concurrent readers.
type ICModel struct {
	ic     map[string]float64
	counts map[string]int
	total  int
	cases  int
}

// BuildIC derives the model from every case's AncestorSet.
func BuildIC(cases []*cohort.Case) (*ICModel, error) {
	m := &ICModel{counts: make(map[string]int)}
	for _, c := range cases {
		if c.AncestorSet.Empty() {
			continue
		}
		m.cases++
		for _, id := range c.AncestorSet {
			m.counts[id]++
			m.total++
		}
	}
	if m.total == 0 {
		return nil, errors.New(errors.ErrCodeICModelEmpty, "no case has a mapped ancestor set")
	}

	m.ic = make(map[string]float64, len(m.counts))
	total := float64(m.total)
	for id, n := range m.counts {
		m.ic[id] = -math.Log2(float64(n) / total)
	}
	return m, nil
}

// IC returns the information content of id.  ok is false for concepts that
// never occurred in the corpus.
func (m *ICModel) IC(id string) (float64, bool) {
	v, ok := m.ic[id]
	return v, ok
}

// Count returns how many cases carry id in their ancestor set.
func (m *ICModel) Count(id string) int { return m.counts[id] }

// Total is the size of the corpus multiset.
func (m *ICModel) Total() int { return m.total }

// Cases is the number of cases that contributed to the model.
func (m *ICModel) Cases() int { return m.cases }

// Len is the number of distinct observed concepts.
func (m *ICModel) Len() int { return len(m.ic) }

// Concepts returns the observed concepts, sorted.
func (m *ICModel) Concepts() []string {
	out := make([]string, 0, len(m.ic))
	for id := range m.ic {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

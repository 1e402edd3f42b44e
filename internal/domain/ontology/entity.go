// Package ontology models the is-a hierarchy of a phenotype ontology such as
// HPO and answers ancestor-closure queries over it.
package ontology

import "sort"

// Term is one class of the ontology as read from a catalog.
type Term struct {
	ID         string
	Name       string
	Parents    []string // direct is_a targets
	AltIDs     []string
	Obsolete   bool
	ReplacedBy []string
}

// Catalog is a parsed ontology release.
type Catalog struct {
	FormatVersion string
	DataVersion   string
	Ontology      string
	Terms         []*Term
}

// ConceptSet is a sorted, duplicate-free list of concept ids.  The zero value
// is the empty set.
type ConceptSet []string

// NewConceptSet builds a ConceptSet from ids in any order.
func NewConceptSet(ids ...string) ConceptSet {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	w := 1
	for r := 1; r < len(out); r++ {
		if out[r] != out[w-1] {
			out[w] = out[r]
			w++
		}
	}
	return ConceptSet(out[:w])
}

// Len returns the number of concepts.
func (s ConceptSet) Len() int { return len(s) }

// Empty reports whether the set has no members.
func (s ConceptSet) Empty() bool { return len(s) == 0 }

// Contains reports whether id is a member.
func (s ConceptSet) Contains(id string) bool {
	i := sort.SearchStrings(s, id)
	return i < len(s) && s[i] == id
}

// Union merges s and o.
func (s ConceptSet) Union(o ConceptSet) ConceptSet {
	out := make(ConceptSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	out = append(out, o[j:]...)
	return out
}

// IntersectEach calls fn for every concept present in both s and o, in order.
func (s ConceptSet) IntersectEach(o ConceptSet, fn func(id string)) {
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case s[i] > o[j]:
			j++
		default:
			fn(s[i])
			i++
			j++
		}
	}
}

// Intersect returns the members shared by s and o.
func (s ConceptSet) Intersect(o ConceptSet) ConceptSet {
	var out ConceptSet
	s.IntersectEach(o, func(id string) { out = append(out, id) })
	return out
}

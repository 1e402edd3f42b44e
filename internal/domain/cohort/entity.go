// Package cohort turns raw case annotation rows into per-case concept and
// ancestor sets ready for information-content weighting.
package cohort

import "github.com/bbowles1/HIPPO/internal/domain/ontology"

// Row is one record of the input table before any processing.
type Row struct {
	CaseID   string
	Concepts string // delimited concept list, e.g. "HP:0001250,HP:0000707"
	Line     int    // 1-based source line, 0 when unknown
}

// Instance is a single (case, concept) pair after exploding a row.
type Instance struct {
	CaseID    string
	Concept   string
	Ancestors ontology.ConceptSet // empty when the concept is unmapped
}

// Mapped reports whether the concept resolved to a non-empty closure.
func (i Instance) Mapped() bool { return !i.Ancestors.Empty() }

// Case is the aggregated view of one case.  It is immutable once returned by
// Aggregate.
type Case struct {
	ID string

	// Concepts holds the distinct mapped concept ids, sorted.
	Concepts ontology.ConceptSet

	// AncestorSet is the union of Concepts and all their ancestors.
	AncestorSet ontology.ConceptSet

	// FullyObsolete is set when none of the case's concepts could be mapped.
	FullyObsolete bool

	// Raw lists the concept tokens as read, in input order.
	Raw []string
}

// Annotations is the result of loading a table of rows.
type Annotations struct {
	Instances []Instance
	Stats     LoadStats
}

// LoadStats summarises a load for diagnostics.
type LoadStats struct {
	Rows              int
	SkippedRows       int
	MappedInstances   int
	UnmappedInstances int
	// UnmappedConcepts lists the distinct unmapped ids, sorted.
	UnmappedConcepts []string
	// UnmappedPercent is 100*unmapped/mapped rounded to two decimals.
	UnmappedPercent float64
}

// Closures indexes the ancestor closure of every concept seen in the
// annotations, unmapped ones included with an empty set.
func (a *Annotations) Closures() map[string]ontology.ConceptSet {
	out := make(map[string]ontology.ConceptSet)
	for _, inst := range a.Instances {
		out[inst.Concept] = inst.Ancestors
	}
	return out
}

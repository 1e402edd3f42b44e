package similarity

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
)

// Score is a similarity value that may be undefined.
type Score struct {
	Value   float64
	Defined bool
}

// Undefined is the zero Score.
var Undefined = Score{}

// Defined wraps v as a defined Score.
func Defined(v float64) Score { return Score{Value: v, Defined: true} }

// Scorer computes the similarity of two concept lists.
type Scorer interface {
	Score(a, b []string) Score
}

// Resnik scores concept lists with the simMax best-match average over
// most-informative-common-ancestor IC values.
type Resnik struct {
	ic       *ICModel
	closures map[string]ontology.ConceptSet
}

// NewResnik builds a scorer over a finished IC model and the closure of every
// concept it will be asked about.  Neither argument may change afterwards.
func NewResnik(ic *ICModel, closures map[string]ontology.ConceptSet) *Resnik {
	return &Resnik{ic: ic, closures: closures}
}

// MICA returns the highest IC among the common ancestors of a and b.  shared
// is false when the closures are disjoint, in which case the IC is 0.
func (r *Resnik) MICA(a, b string) (ic float64, shared bool) {
	r.closures[a].IntersectEach(r.closures[b], func(id string) {
		v, ok := r.ic.IC(id)
		if !ok {
			return
		}
		if !shared || v > ic {
			ic = v
		}
		shared = true
	})
	return ic, shared
}

// Score returns 0.5 * (sum of column maxima + sum of row maxima) of the
// |a|x|b| MICA matrix.  It is undefined when either list is empty or no pair
// of concepts shares an ancestor; disjoint pairs otherwise contribute 0.
func (r *Resnik) Score(a, b []string) Score {
	if len(a) == 0 || len(b) == 0 {
		return Undefined
	}

	m := mat.NewDense(len(a), len(b), nil)
	anyShared := false
	for i, ca := range a {
		for j, cb := range b {
			v, shared := r.MICA(ca, cb)
			if shared {
				anyShared = true
				m.Set(i, j, v)
			}
		}
	}
	if !anyShared {
		return Undefined
	}

	rowMax := make([]float64, len(a))
	for i := range rowMax {
		rowMax[i] = floats.Max(m.RawRowView(i))
	}
	colMax := make([]float64, len(b))
	col := make([]float64, len(a))
	for j := range colMax {
		colMax[j] = floats.Max(mat.Col(col, j, m))
	}
	return Defined(0.5 * (floats.Sum(colMax) + floats.Sum(rowMax)))
}

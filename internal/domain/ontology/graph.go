package ontology

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/bbowles1/HIPPO/pkg/errors"
)

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithAltIDResolution makes Ancestors accept secondary (alt_id) identifiers
// and answer with the closure of their primary term.
func WithAltIDResolution() GraphOption {
	return func(g *Graph) { g.resolveAlt = true }
}

// Graph is an in-memory is-a DAG.  It is read-only after NewGraph and all
// methods are safe for concurrent use.
type Graph struct {
	terms      map[string]*Term
	parents    map[string][]string // edges to known terms only
	alt        map[string]string
	resolveAlt bool
	dangling   int
	release    string

	closures sync.Map // id -> ConceptSet
}

// NewGraph indexes cat.  Edges to terms missing from the catalog are dropped
// and counted; an is-a cycle is an error.
func NewGraph(cat *Catalog, opts ...GraphOption) (*Graph, error) {
	if cat == nil || len(cat.Terms) == 0 {
		return nil, errors.New(errors.ErrCodeOntologyEmpty, "ontology catalog contains no terms")
	}

	g := &Graph{
		terms:   make(map[string]*Term, len(cat.Terms)),
		parents: make(map[string][]string, len(cat.Terms)),
		alt:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, t := range cat.Terms {
		g.terms[t.ID] = t
	}
	for _, t := range cat.Terms {
		for _, a := range t.AltIDs {
			if _, primary := g.terms[a]; !primary {
				g.alt[a] = t.ID
			}
		}
		ps := make([]string, 0, len(t.Parents))
		for _, p := range t.Parents {
			if _, ok := g.terms[p]; !ok {
				g.dangling++
				continue
			}
			ps = append(ps, p)
		}
		g.parents[t.ID] = ps
	}

	if cyc := g.findCycle(); cyc != "" {
		return nil, errors.New(errors.ErrCodeOntologyCycle, "is-a cycle detected").WithDetail(cyc)
	}
	g.release = releaseOf(cat)
	return g, nil
}

// releaseOf names cat by its data-version header and a digest of the terms,
// so an edited file never passes for the release it was derived from.
func releaseOf(cat *Catalog) string {
	d := xxhash.New()
	for _, t := range cat.Terms {
		_, _ = d.WriteString(t.ID)
		if t.Obsolete {
			_, _ = d.WriteString("!")
		}
		for _, list := range [][]string{t.Parents, t.AltIDs} {
			_, _ = d.WriteString("|")
			for _, id := range list {
				_, _ = d.WriteString(id)
				_, _ = d.WriteString(",")
			}
		}
		_, _ = d.WriteString("\n")
	}
	sum := strconv.FormatUint(d.Sum64(), 16)
	if cat.DataVersion == "" {
		return sum
	}
	return cat.DataVersion + "@" + sum
}

// findCycle returns a term on an is-a cycle, or "" for a DAG.
func (g *Graph) findCycle() string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.terms))

	ids := make([]string, 0, len(g.terms))
	for id := range g.terms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type frame struct {
		id  string
		idx int
	}
	for _, root := range ids {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			ps := g.parents[top.id]
			if top.idx == len(ps) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := ps[top.idx]
			top.idx++
			switch color[next] {
			case grey:
				return next
			case white:
				color[next] = grey
				stack = append(stack, frame{id: next})
			}
		}
	}
	return ""
}

// Len returns the number of terms, obsolete ones included.
func (g *Graph) Len() int { return len(g.terms) }

// DanglingEdges returns how many is_a edges pointed at unknown terms.
func (g *Graph) DanglingEdges() int { return g.dangling }

// Release implements Versioned.
func (g *Graph) Release(context.Context) (string, error) { return g.release, nil }

// Term looks up a term by primary id.
func (g *Graph) Term(id string) (*Term, bool) {
	t, ok := g.terms[id]
	return t, ok
}

// Resolve maps id onto the primary id Ancestors would use; ok is false for
// unknown ids.
func (g *Graph) Resolve(id string) (string, bool) {
	if _, ok := g.terms[id]; ok {
		return id, true
	}
	if g.resolveAlt {
		if p, ok := g.alt[id]; ok {
			return p, true
		}
	}
	return "", false
}

// Ancestors implements Provider.  The returned set is shared between callers
// and must not be modified.
func (g *Graph) Ancestors(_ context.Context, id string) (ConceptSet, error) {
	primary, ok := g.Resolve(id)
	if !ok || g.terms[primary].Obsolete {
		return nil, nil
	}
	return g.closure(primary), nil
}

func (g *Graph) closure(id string) ConceptSet {
	if v, ok := g.closures.Load(id); ok {
		return v.(ConceptSet)
	}
	set := ConceptSet{id}
	for _, p := range g.parents[id] {
		set = set.Union(g.closure(p))
	}
	v, _ := g.closures.LoadOrStore(id, set)
	return v.(ConceptSet)
}

// LoadGraph reads an OBO file and indexes it.
func LoadGraph(path string, opts ...GraphOption) (*Graph, error) {
	cat, err := LoadOBOFile(path)
	if err != nil {
		return nil, err
	}
	return NewGraph(cat, opts...)
}

package ontology

import "context"

// Provider answers reflexive is-a closure queries.
//
// Ancestors returns the id itself plus every transitive is-a ancestor.  An
// unknown or obsolete id yields an empty set and a nil error; a non-nil error
// means the backing store could not be queried and the caller should abort.
// Implementations must be safe for concurrent use.
type Provider interface {
	Ancestors(ctx context.Context, id string) (ConceptSet, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) (ConceptSet, error)

// Ancestors calls f.
func (f ProviderFunc) Ancestors(ctx context.Context, id string) (ConceptSet, error) {
	return f(ctx, id)
}

// Store persists a catalog in a graph backend so that a remote Provider can
// answer closures without re-reading the OBO file.
type Store interface {
	// ImportCatalog upserts every term and its is_a edges.  It returns the
	// number of terms written.
	ImportCatalog(ctx context.Context, cat *Catalog) (int, error)

	// TermCount returns the number of non-obsolete terms stored.
	TermCount(ctx context.Context) (int, error)
}

// Versioned is implemented by providers that can name the ontology release
// they answer from.  Two providers over different content must report
// different releases; caches key on it.
type Versioned interface {
	Release(ctx context.Context) (string, error)
}

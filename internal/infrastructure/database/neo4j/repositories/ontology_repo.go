// Package repositories holds the Neo4j-backed ontology store.
package repositories

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	driver "github.com/bbowles1/HIPPO/internal/infrastructure/database/neo4j"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const defaultImportBatchSize = 500

const (
	cypherTermConstraint = `CREATE CONSTRAINT term_id IF NOT EXISTS FOR (t:Term) REQUIRE t.id IS UNIQUE`

	cypherMergeOntology = `
		MERGE (o:Ontology {name: $name})
		SET o.format_version = $formatVersion, o.data_version = $dataVersion, o.imported_at = datetime()`

	cypherMergeTerms = `
		UNWIND $terms AS t
		MERGE (n:Term {id: t.id})
		SET n.name = t.name, n.obsolete = t.obsolete, n.alt_ids = t.alt_ids, n.replaced_by = t.replaced_by`

	cypherMergeIsA = `
		UNWIND $edges AS e
		MATCH (c:Term {id: e.child})
		MATCH (p:Term {id: e.parent})
		MERGE (c)-[:IS_A]->(p)`

	// A primary id wins over an alt_id of another term.
	cypherAncestors = `
		OPTIONAL MATCH (p:Term {id: $id})
		OPTIONAL MATCH (s:Term)
		WHERE p IS NULL AND $resolveAlt AND $id IN coalesce(s.alt_ids, [])
		WITH coalesce(p, s) AS t
		WHERE t IS NOT NULL
		WITH t ORDER BY t.id LIMIT 1
		WHERE NOT coalesce(t.obsolete, false)
		MATCH (t)-[:IS_A*0..]->(a:Term)
		RETURN collect(DISTINCT a.id) AS ancestors`

	cypherRelease = `
		MATCH (o:Ontology)
		RETURN coalesce(o.data_version, '') + '@' + toString(o.imported_at) AS release
		ORDER BY o.imported_at DESC LIMIT 1`

	cypherTermCount = `MATCH (t:Term) WHERE NOT coalesce(t.obsolete, false) RETURN count(t) AS n`
)

// OntologyRepository stores a catalog as (:Term)-[:IS_A]->(:Term) and
// answers closure queries with a variable-length match.  It implements
// ontology.Provider and ontology.Store.
type OntologyRepository struct {
	exec       driver.Executor
	batchSize  int
	resolveAlt bool
	log        logging.Logger
}

var (
	_ ontology.Provider  = (*OntologyRepository)(nil)
	_ ontology.Store     = (*OntologyRepository)(nil)
	_ ontology.Versioned = (*OntologyRepository)(nil)
)

// RepositoryOption configures an OntologyRepository.
type RepositoryOption func(*OntologyRepository)

// WithAltIDResolution makes Ancestors accept alt_ids, answering with the
// closure of the term that lists them.
func WithAltIDResolution(enabled bool) RepositoryOption {
	return func(r *OntologyRepository) { r.resolveAlt = enabled }
}

// NewOntologyRepository creates a repository.  batchSize bounds the terms
// or edges sent per UNWIND; 0 selects 500.
func NewOntologyRepository(exec driver.Executor, batchSize int, log logging.Logger, opts ...RepositoryOption) *OntologyRepository {
	if batchSize <= 0 {
		batchSize = defaultImportBatchSize
	}
	r := &OntologyRepository{exec: exec, batchSize: batchSize, log: logging.OrNop(log)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ImportCatalog merges every term and is_a edge of cat.  Re-importing the
// same release is idempotent; edges removed upstream are not deleted.
func (r *OntologyRepository) ImportCatalog(ctx context.Context, cat *ontology.Catalog) (int, error) {
	if cat == nil || len(cat.Terms) == 0 {
		return 0, errors.New(errors.ErrCodeOntologyEmpty, "nothing to import")
	}

	if _, err := r.exec.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		return run(ctx, tx, cypherTermConstraint, nil)
	}); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeOntologyImportFailed, "cannot create term constraint")
	}

	terms := make([]map[string]any, 0, len(cat.Terms))
	var edges []map[string]any
	for _, t := range cat.Terms {
		terms = append(terms, map[string]any{
			"id":          t.ID,
			"name":        t.Name,
			"obsolete":    t.Obsolete,
			"alt_ids":     stringsOrEmpty(t.AltIDs),
			"replaced_by": stringsOrEmpty(t.ReplacedBy),
		})
		for _, p := range t.Parents {
			edges = append(edges, map[string]any{"child": t.ID, "parent": p})
		}
	}

	if err := r.writeBatches(ctx, cypherMergeTerms, "terms", terms); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeOntologyImportFailed, "cannot import terms")
	}
	if err := r.writeBatches(ctx, cypherMergeIsA, "edges", edges); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeOntologyImportFailed, "cannot import is_a edges")
	}

	params := map[string]any{
		"name":          cat.Ontology,
		"formatVersion": cat.FormatVersion,
		"dataVersion":   cat.DataVersion,
	}
	if _, err := r.exec.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		return run(ctx, tx, cypherMergeOntology, params)
	}); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeOntologyImportFailed, "cannot record ontology metadata")
	}

	r.log.Info("ontology imported",
		logging.String("ontology", cat.Ontology),
		logging.String("data_version", cat.DataVersion),
		logging.Int("terms", len(terms)),
		logging.Int("edges", len(edges)),
	)
	return len(terms), nil
}

func (r *OntologyRepository) writeBatches(ctx context.Context, cypher, key string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += r.batchSize {
		end := start + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if _, err := r.exec.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			return run(ctx, tx, cypher, map[string]any{key: batch})
		}); err != nil {
			return err
		}
		r.log.Debug("import batch written", logging.String("kind", key), logging.Int("end", end), logging.Int("total", len(rows)))
	}
	return nil
}

// Ancestors returns the reflexive is_a closure of id.  Unknown and obsolete
// terms yield an empty set.
func (r *OntologyRepository) Ancestors(ctx context.Context, id string) (ontology.ConceptSet, error) {
	out, err := r.exec.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherAncestors, map[string]any{"id": id, "resolveAlt": r.resolveAlt})
		if err != nil {
			return nil, err
		}
		ids, err := driver.CollectRecords(ctx, res, func(rec *neo4j.Record) ([]string, error) {
			raw, _ := rec.Get("ancestors")
			list, _ := raw.([]any)
			ids := make([]string, 0, len(list))
			for _, v := range list {
				if s, ok := v.(string); ok {
					ids = append(ids, s)
				}
			}
			return ids, nil
		})
		if err != nil {
			return nil, err
		}
		var flat []string
		for _, chunk := range ids {
			flat = append(flat, chunk...)
		}
		return flat, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyQueryFailed, "ancestor query failed").WithDetail(id)
	}
	ids, _ := out.([]string)
	if len(ids) == 0 {
		return nil, nil
	}
	return ontology.NewConceptSet(ids...), nil
}

// Release implements ontology.Versioned.  It names the last import, so a
// re-import of the same data version still yields a new release.
func (r *OntologyRepository) Release(ctx context.Context) (string, error) {
	out, err := r.exec.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherRelease, nil)
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, res, func(rec *neo4j.Record) (string, error) {
			v, _ := rec.Get("release")
			s, _ := v.(string)
			return s, nil
		})
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeOntologyQueryFailed, "no imported ontology release found")
	}
	release, _ := out.(string)
	return release, nil
}

// TermCount returns the number of stored non-obsolete terms.
func (r *OntologyRepository) TermCount(ctx context.Context) (int, error) {
	out, err := r.exec.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherTermCount, nil)
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, res, func(rec *neo4j.Record) (int64, error) {
			v, _ := rec.Get("n")
			n, _ := v.(int64)
			return n, nil
		})
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeOntologyQueryFailed, "term count query failed")
	}
	n, _ := out.(int64)
	return int(n), nil
}

func run(ctx context.Context, tx driver.Transaction, cypher string, params map[string]any) (any, error) {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Consume(ctx)
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

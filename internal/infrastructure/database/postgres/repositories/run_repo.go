// Package repositories persists similarity runs in PostgreSQL.
package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const insertRun = `
	INSERT INTO similarity_runs (
		id, started_at, finished_at, input_path, output_path, cases, pairs_scored,
		mapped_instances, unmapped_instances, unmapped_percent,
		unmapped_concepts, fully_obsolete_cases, dropped_cases
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

var scoreColumns = []string{"run_id", "case_a", "case_b", "score"}

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunRepository stores a run row and the upper triangle of its matrix.
type RunRepository struct {
	db     TxStarter
	logger logging.Logger
}

var _ similarity.ReportSink = (*RunRepository)(nil)

// NewRunRepository creates a repository over db.
func NewRunRepository(db TxStarter, log logging.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logging.OrNop(log)}
}

// Name implements similarity.ReportSink.
func (r *RunRepository) Name() string { return "postgres" }

// Publish implements similarity.ReportSink.  Everything is written in one
// transaction; scores go through COPY.
func (r *RunRepository) Publish(ctx context.Context, report *similarity.RunReport) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.logger.Warn("rollback failed", logging.Err(rbErr))
			}
		}
	}()

	m := report.Matrix
	d := report.Diagnostics
	if _, err = tx.Exec(ctx, insertRun,
		report.RunID, report.StartedAt, report.FinishedAt, report.InputPath, report.OutputPath,
		m.Len(), d.PairsScored, d.MappedInstances, d.UnmappedInstances, d.UnmappedPercent,
		nonNil(d.UnmappedConcepts), nonNil(d.FullyObsoleteCases), nonNil(d.DroppedCases),
	); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run").WithDetail(report.RunID)
	}

	rows := scoreRows(report.RunID, m)
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"similarity_scores"}, scoreColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to copy scores").WithDetail(report.RunID)
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit run").WithDetail(report.RunID)
	}
	r.logger.Info("run persisted", logging.String("run_id", report.RunID), logging.Int64("scores", n))
	return nil
}

// scoreRows lists each defined off-diagonal pair once, i < j.
func scoreRows(runID string, m *similarity.Matrix) [][]any {
	ids := m.IDs()
	var rows [][]any
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			s := m.At(i, j)
			if !s.Defined {
				continue
			}
			rows = append(rows, []any{runID, ids[i], ids[j], s.Value})
		}
	}
	return rows
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package cli

import (
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/bbowles1/HIPPO/internal/application/resnik"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/internal/interfaces/table"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the pairwise Resnik similarity matrix of a case table",
		Long: "run reads the case table, resolves every HPO term to its ancestors, builds the\n" +
			"information content model from the cohort itself and writes the symmetric\n" +
			"best-match-average Resnik matrix.  Cases whose similarity is undefined are dropped.",
		Example: "  hippo run -c hp.obo -i cases.tsv -o matrix.tsv --workers 8",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runSimilarity(cmd, cliCtx)
		},
	}

	f := cmd.Flags()
	f.StringP("catalog", "c", "", "path to a downloaded hp.obo file")
	f.StringP("input", "i", "", "delimited input table with ID and HPO columns")
	f.StringP("output", "o", "", "path of the similarity matrix to write")
	f.Int("workers", 0, "parallel scoring workers (0 = number of CPUs)")
	f.String("source", "", "ontology source (obo, neo4j)")
	f.String("column-labels", "", "matrix column labels (ids, positional)")
	f.Int("precision", 0, "decimals written per score (0 = shortest round-trip form)")
	bindFlag(f, "catalog", "ontology.path")
	bindFlag(f, "input", "input.path")
	bindFlag(f, "output", "output.path")
	bindFlag(f, "workers", "compute.workers")
	bindFlag(f, "source", "ontology.source")
	bindFlag(f, "column-labels", "output.column_labels")
	bindFlag(f, "precision", "output.precision")
	return cmd
}

func runSimilarity(cmd *cobra.Command, c *CLIContext) error {
	cfg := c.Config
	if cfg.Input.Path == "" {
		return errors.Errorf("an input table is required: pass --input or set input.path")
	}
	if cfg.Output.Path == "" {
		return errors.Errorf("an output path is required: pass --output or set output.path")
	}

	ctx, cancel := c.withTimeout(cmd.Context())
	defer cancel()
	defer c.flushMetrics(cmd.Context())

	var cl closers
	defer cl.close()

	provider, err := buildProvider(ctx, c, &cl)
	if err != nil {
		return err
	}

	rows, err := table.ReadFile(cfg.Input.Path, table.ReaderOptions{
		Delimiter:     firstRune(cfg.Input.Delimiter),
		IDColumn:      cfg.Input.IDColumn,
		ConceptColumn: cfg.Input.ConceptColumn,
	})
	if err != nil {
		return err
	}

	sinks, err := openSinks(ctx, cfg, c.Logger, &cl)
	if err != nil {
		return err
	}

	writeOpts := table.WriterOptions{
		Delimiter:    firstRune(cfg.Output.Delimiter),
		ColumnLabels: cfg.Output.ColumnLabels,
		Precision:    cfg.Output.Precision,
		IDHeader:     cfg.Input.IDColumn,
	}
	writer := resnik.MatrixWriterFunc(func(path string, m *similarity.Matrix) error {
		return table.WriteMatrixFile(path, m, writeOpts)
	})

	svc := resnik.NewService(provider, writer, c.Logger,
		resnik.WithWorkers(cfg.Compute.Workers),
		resnik.WithLookupWorkers(cfg.Compute.Workers),
		resnik.WithConceptDelimiter(cfg.Input.ConceptDelimiter),
		resnik.WithProgressPercent(cfg.Compute.ProgressPercent),
		resnik.WithMetrics(c.Metrics),
		resnik.WithSinks(sinks...),
	)

	res, err := svc.Run(ctx, rows)
	if err != nil {
		return err
	}
	return svc.Export(ctx, res, resnik.ExportInput{
		InputPath:  cfg.Input.Path,
		OutputPath: cfg.Output.Path,
	})
}

// firstRune returns the single-character delimiter validated by config.
func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

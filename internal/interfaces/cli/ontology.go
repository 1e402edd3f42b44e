package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/internal/infrastructure/database/redis"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// importLockKey serialises concurrent imports into the same graph.
const importLockKey = "hippo:lock:ontology-import"

func newOntologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Manage and inspect the HPO ontology",
	}
	cmd.AddCommand(newOntologyImportCmd(), newOntologyAncestorsCmd())
	return cmd
}

type importOptions struct {
	lock    bool
	lockTTL time.Duration
}

func newOntologyImportCmd() *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:     "import",
		Short:   "Load an OBO catalog into Neo4j",
		Example: "  hippo ontology import -c hp.obo --lock",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runOntologyImport(cmd, cliCtx, opts)
		},
	}
	f := cmd.Flags()
	f.StringP("catalog", "c", "", "path to a downloaded hp.obo file")
	f.BoolVar(&opts.lock, "lock", false, "hold a Redis lock while importing")
	f.DurationVar(&opts.lockTTL, "lock-ttl", 10*time.Minute, "expiry of the import lock")
	bindFlag(f, "catalog", "ontology.path")
	return cmd
}

func runOntologyImport(cmd *cobra.Command, c *CLIContext, opts *importOptions) error {
	cfg := c.Config
	log := c.Logger.Named("import")
	if cfg.Ontology.Path == "" {
		return errors.Errorf("an ontology catalog is required: pass --catalog or set ontology.path")
	}

	ctx, cancel := c.withTimeout(cmd.Context())
	defer cancel()
	defer c.flushMetrics(cmd.Context())

	cat, err := ontology.LoadOBOFile(cfg.Ontology.Path)
	if err != nil {
		return err
	}
	// Reject cycles before anything reaches the store.
	if _, err := ontology.NewGraph(cat); err != nil {
		return err
	}

	if opts.lock {
		client, err := openRedis(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer client.Close()

		lock, err := client.TryLock(ctx, importLockKey, opts.lockTTL)
		if err != nil {
			return err
		}
		defer releaseLock(lock, log)
	}

	store, closeStore, err := openGraphStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore(context.Background()) }()

	start := time.Now()
	n, err := store.ImportCatalog(ctx, cat)
	if err != nil {
		return err
	}
	c.Metrics.RecordImport(n)

	active, err := store.TermCount(ctx)
	if err != nil {
		return err
	}
	log.Info("ontology imported",
		logging.String("path", cfg.Ontology.Path),
		logging.String("data_version", cat.DataVersion),
		logging.Int("terms", n),
		logging.Int("active_terms", active),
		logging.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d terms (%d active) into %s\n", n, active, cfg.Neo4j.URI)
	return nil
}

func releaseLock(lock *redis.Lock, log logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		log.Warn("failed to release import lock", logging.Err(err))
	}
}

func newOntologyAncestorsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "ancestors ID",
		Short:   "Print the reflexive is-a closure of a term",
		Example: "  hippo ontology ancestors HP:0001250 -c hp.obo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runOntologyAncestors(cmd, cliCtx, strings.TrimSpace(args[0]), format)
		},
	}
	f := cmd.Flags()
	f.StringP("catalog", "c", "", "path to a downloaded hp.obo file")
	f.String("source", "", "ontology source (obo, neo4j)")
	f.StringVar(&format, "format", "text", "output format (text, json)")
	bindFlag(f, "catalog", "ontology.path")
	bindFlag(f, "source", "ontology.source")
	return cmd
}

func runOntologyAncestors(cmd *cobra.Command, c *CLIContext, id, format string) error {
	if format != "text" && format != "json" {
		return errors.Errorf("--format must be text or json, got %q", format)
	}

	ctx, cancel := c.withTimeout(cmd.Context())
	defer cancel()

	var cl closers
	defer cl.close()

	provider, err := buildProvider(ctx, c, &cl)
	if err != nil {
		return err
	}
	set, err := provider.Ancestors(ctx, id)
	if err != nil {
		return err
	}
	if set.Empty() {
		return errors.Newf(errors.ErrCodeNotFound, "%s is unknown or obsolete", id)
	}

	if format == "json" {
		return printJSON(cmd, map[string]interface{}{"id": id, "ancestors": []string(set)})
	}
	for _, a := range set {
		fmt.Fprintln(cmd.OutOrStdout(), a)
	}
	return nil
}

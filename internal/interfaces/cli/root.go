// Package cli implements the hippo command tree.  The root command loads the
// configuration, builds the logger and the optional metrics collector, and
// hands them to subcommands through a CLIContext stored on the command's
// context.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bbowles1/HIPPO/internal/config"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/prometheus"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// configKeyAnnotation marks a flag with the config key it overrides.
const configKeyAnnotation = "hippo/config-key"

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Timeout    time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector // nil unless metrics.enabled
	Metrics   *prometheus.RunMetrics      // nil-safe
}

// NewRootCommand creates the root command with all global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hippo",
		Short: "HIPPO computes pairwise HPO semantic similarity between cases",
		Long: "hippo reads a table of cases annotated with Human Phenotype Ontology terms,\n" +
			"scores every pair of cases with best-match-average Resnik similarity and\n" +
			"writes the symmetric similarity matrix as a delimited text file.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid command line")
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "config file path (default: ./hippo.yaml, ~/.hippo/config.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.LogFormat, "log-format", "", "log format (console, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "abort after this long (0 = no deadline)")
	bindFlag(pf, "log-level", "log.level")
	bindFlag(pf, "log-format", "log.format")
	bindFlag(pf, "timeout", "compute.timeout")

	cmd.AddCommand(
		newRunCmd(),
		newOntologyCmd(),
		newDBCmd(),
		newVersionCmd(),
	)
	return cmd
}

// bindFlag records that flag name overrides config key.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKeyAnnotation, []string{key})
}

func flagBindings(cmd *cobra.Command) []config.LoadOption {
	var opts []config.LoadOption
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok {
			for _, key := range keys {
				opts = append(opts, config.WithFlag(key, f))
			}
		}
	})
	return opts
}

// persistentPreRun initializes config, logger and metrics, then stores the
// CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := initConfig(cmd, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "config initialization failed")
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "logger initialization failed")
	}
	logging.SetDefault(logger)

	cliCtx := &CLIContext{Config: cfg, Logger: logger}
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:       cfg.Metrics.Namespace,
			EnableGoMetrics: cfg.Metrics.PushgatewayURL != "",
		}, logger)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "metrics initialization failed")
		}
		cliCtx.Collector = collector
		cliCtx.Metrics = prometheus.NewRunMetrics(collector)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads configuration with priority flags > env > file > defaults.
func initConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	bindings := flagBindings(cmd)
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath, bindings...)
	}

	searchPaths := []string{"./hippo.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".hippo", "config.yaml"))
	}
	for _, p := range searchPaths {
		if _, statErr := os.Stat(p); statErr == nil {
			return config.Load(p, bindings...)
		}
	}
	return config.LoadFromEnv(bindings...)
}

// initLogger creates a logger writing to stderr so stdout stays clean.
func initLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
}

// GetCLIContext extracts the CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// withTimeout applies compute.timeout to ctx.
func (c *CLIContext) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Config.Compute.Timeout > 0 {
		return context.WithTimeout(ctx, c.Config.Compute.Timeout)
	}
	return context.WithCancel(ctx)
}

// flushMetrics writes the textfile and pushes to the Pushgateway when
// configured.  Failures are logged; they never fail the command.
func (c *CLIContext) flushMetrics(ctx context.Context) {
	if c.Collector == nil {
		return
	}
	m := c.Config.Metrics
	if m.TextfilePath != "" {
		if err := c.Collector.WriteTextfile(m.TextfilePath); err != nil {
			c.Logger.Warn("failed to write metrics textfile", logging.String("path", m.TextfilePath), logging.Err(err))
		}
	}
	if m.PushgatewayURL != "" {
		if err := c.Collector.Push(ctx, m.PushgatewayURL, m.JobName); err != nil {
			c.Logger.Warn("failed to push metrics", logging.String("url", m.PushgatewayURL), logging.Err(err))
		}
	}
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	_ = logging.Default().Sync()
	if err != nil {
		PrintError(root, err)
		return errors.ExitCodeForCode(errors.GetCode(err))
	}
	return errors.ExitOK
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hippo %s\ncommit: %s\nbuilt: %s\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

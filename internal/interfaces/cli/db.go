package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbowles1/HIPPO/pkg/errors"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the Postgres run store",
	}
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, roll back or report schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd, cliCtx, action, steps)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "migrations to roll back with down")
	return cmd
}

func runMigrate(cmd *cobra.Command, c *CLIContext, action string, steps int) error {
	pg := c.Config.Postgres
	if pg.User == "" {
		return errors.Errorf("postgres.user is required to run migrations")
	}

	m, err := openMigrator(pg.DSN(), c.Logger)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down(steps)
	case "version":
	default:
		return errors.Errorf("unknown migrate action %q", action)
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

// Package commands provides CLI commands for the admin tool
package commands

import (
	"fmt"
	"os"

	"examprep/internal/config"
	"examprep/internal/di"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the exam preparation service.

Available commands:
  migrate   - Apply pending migrations
  stats     - Show row counts for tests and sessions`,
	}

	dbCmd.AddCommand(migrateCmd(cfg, logger))
	dbCmd.AddCommand(statsCmd(cfg, logger))

	return dbCmd
}

func migrateCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Initialize runs the embedded migrations before wiring services
			return withContainer(cmd.Context(), cfg, logger, func(sc *di.ServiceContainer) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations are up to date:", getDatabaseInfo(cmd.Context(), sc.GetDatabase()))
				return nil
			})
		},
	}
}

func statsCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show how many tests, questions and sessions are stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withContainer(ctx, cfg, logger, func(sc *di.ServiceContainer) error {
				logger.Info(ctx, "Diagnostic info", map[string]interface{}{
					"config_file": os.Getenv(config.ConfigFileEnv),
					"database":    getDatabaseInfo(ctx, sc.GetDatabase()),
				})

				stats, err := sc.GetDatabaseManager().CollectStats(ctx, sc.GetDatabase())
				if err != nil {
					return contextutils.WrapError(err, "failed to collect database statistics")
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-20s %d\n", "Tests", stats.Tests)
				fmt.Fprintf(out, "%-20s %d\n", "Questions", stats.Questions)
				fmt.Fprintf(out, "%-20s %d\n", "Answers", stats.Answers)
				fmt.Fprintf(out, "%-20s %d\n", "Sessions", stats.Sessions)
				fmt.Fprintf(out, "%-20s %d\n", "Completed sessions", stats.CompletedSession)
				return nil
			})
		},
	}
}

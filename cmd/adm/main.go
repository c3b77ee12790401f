// Package main provides the entry point for the exam preparation admin CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"examprep/cmd/adm/commands"
	"examprep/internal/config"
	"examprep/internal/observability"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	if os.Getenv(config.ConfigFileEnv) == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set %s: %v\n", config.ConfigFileEnv, err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The CLI talks to no collector; keep it quiet
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "examprep-admin", "error")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Exam preparation administration tool",
		Long: `Exam preparation administration tool

Generates and inspects IELTS and TOEIC tests, reports database statistics
and mints bearer tokens for API clients.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.ExamCommands(cfg, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(cfg, logger))
	rootCmd.AddCommand(commands.TokenCommands(cfg, logger))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(ctx, "Command failed", err)
		os.Exit(1)
	}
}

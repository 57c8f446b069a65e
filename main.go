package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/config"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCommand(Version).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nps-engine",
		Short: "Ingest NPS survey exports and enrich comments with themes and sentiment",
		Long: `nps-engine normalizes NPS survey exports (CSV or XLSX) into PostgreSQL and
classifies free-text comments into a shared theme taxonomy with an LLM.

Configuration is read from config.yaml when present, with environment
variables taking precedence. Secrets (PGPASSWORD, LLM_API_KEY, REDIS_PASSWORD)
are only read from the environment.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (upload intake, enrichment trigger, stats)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Normalize and store one survey export",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	enrichCmd := &cobra.Command{
		Use:   "enrich",
		Short: "Classify stored comments that have no enrichment for the configured model",
		Args:  cobra.NoArgs,
		RunE:  runEnrich,
	}
	enrichCmd.Flags().Int("batch-size", 0, "Responses per batch (default from configuration)")
	enrichCmd.Flags().Int("max-batches", 0, "Stop after this many batches (0 = until done)")
	enrichCmd.Flags().Bool("force", false, "Re-classify responses that already have an enrichment for the model")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show enrichment coverage for the configured model",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, ingestCmd, enrichCmd, statsCmd)
	return rootCmd
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read --config flag: %w", err)
	}

	cfg, err := config.LoadFile(path, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

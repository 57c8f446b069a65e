package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/nps-engine/pkg/app"
	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/services"
)

const shutdownTimeout = 30 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: true, Enrichment: true, Redis: true})
	if err != nil {
		logger.Error("Startup failed", zap.String("error", logging.SanitizeError(err)))
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting nps-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.String("base_url", cfg.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	connStr := cfg.Database.ConnectionString()
	logger.Info("Applying migrations", zap.String("dsn", logging.SanitizeConnectionString(connStr)))
	if err := database.OpenAndMigrate(connStr, logger); err != nil {
		return fmt.Errorf("migration failed: %s", logging.SanitizeError(err))
	}
	logger.Info("Migrations complete")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Ingestion.Ingest(ctx, filepath.Base(path), data)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var opts services.EnrichmentOptions
	if opts.BatchSize, err = cmd.Flags().GetInt("batch-size"); err != nil {
		return fmt.Errorf("failed to read --batch-size flag: %w", err)
	}
	if opts.MaxBatches, err = cmd.Flags().GetInt("max-batches"); err != nil {
		return fmt.Errorf("failed to read --max-batches flag: %w", err)
	}
	if opts.Force, err = cmd.Flags().GetBool("force"); err != nil {
		return fmt.Errorf("failed to read --force flag: %w", err)
	}
	if opts.BatchSize < 0 || opts.MaxBatches < 0 {
		return fmt.Errorf("--batch-size and --max-batches must not be negative")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Enrichment: true})
	if err != nil {
		return err
	}
	defer a.Close()

	result, runErr := a.Enrichment.Run(ctx, opts)
	if result != nil {
		if err := printJSON(cmd, result); err != nil {
			return err
		}
	}
	return runErr
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cmd.Context(), cfg, logger, app.Options{Enrichment: true})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Enrichment.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, stats)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

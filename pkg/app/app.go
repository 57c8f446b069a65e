// Package app wires configuration, datastores and services into a runnable engine.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/config"
	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/handlers"
	"github.com/ekaya-inc/nps-engine/pkg/llm"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/middleware"
	"github.com/ekaya-inc/nps-engine/pkg/repositories"
	"github.com/ekaya-inc/nps-engine/pkg/services"
)

// Options select which optional parts of the engine to build.
type Options struct {
	// Migrate applies pending migrations before connecting the pool.
	Migrate bool
	// Enrichment builds the LLM client and enrichment service. Missing
	// credentials are a setup error when set.
	Enrichment bool
	// Redis connects the job store to Redis when a host is configured.
	Redis bool
}

// App holds the wired engine. Fields for parts not requested in Options are nil.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Redis  *redis.Client

	Ingestion  services.IngestionService
	UploadJobs services.UploadJobService
	Enrichment services.EnrichmentService
}

// New connects to the datastores and builds the services. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	connStr := cfg.Database.ConnectionString()
	logger.Info("Connecting to database", zap.String("dsn", logging.SanitizeConnectionString(connStr)))

	if opts.Migrate {
		if err := database.OpenAndMigrate(connStr, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	var jobStore services.JobStore = services.NewMemoryJobStore(cfg.Redis.JobTTL)
	if opts.Redis {
		client, err := database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		if client != nil {
			a.Redis = client
			jobStore = services.NewRedisJobStore(client, cfg.Redis.JobTTL)
			logger.Info("Upload jobs stored in Redis", zap.String("host", cfg.Redis.Host))
		}
	}

	rawRepo := repositories.NewRawResponseRepository(db.Pool)
	responseRepo := repositories.NewResponseRepository(db.Pool)

	a.Ingestion = services.NewIngestionService(rawRepo, responseRepo, cfg.Ingest, logger)
	a.UploadJobs = services.NewUploadJobService(a.Ingestion, jobStore, logger)

	if opts.Enrichment {
		client, err := llm.NewFromConfig(&cfg.LLM, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure LLM client: %w", err)
		}
		classifier, err := services.NewClassificationService(client, cfg.LLM, cfg.Enrichment, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		registry := services.NewThemeRegistry(repositories.NewThemeRepository(db.Pool), cfg.Enrichment.OtherTheme, logger)
		a.Enrichment = services.NewEnrichmentService(
			responseRepo,
			repositories.NewEnrichmentRepository(db.Pool),
			registry,
			classifier,
			cfg.Enrichment,
			logger,
		)
		logger.Info("Enrichment configured",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", client.GetModel()),
			zap.String("prompt_version", classifier.PromptVersion()))
	}

	return a, nil
}

// Handler returns the HTTP API with request logging and panic recovery.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.Config, a.DB, a.Logger).RegisterRoutes(mux)
	handlers.NewIngestHandler(a.Ingestion, a.UploadJobs, a.Config.Ingest.MaxUploadBytes, a.Logger.Named("ingest-handler")).RegisterRoutes(mux)
	if a.Enrichment != nil {
		handlers.NewEnrichmentHandler(a.Enrichment, a.Logger.Named("enrichment-handler")).RegisterRoutes(mux)
	}

	var h http.Handler = mux
	h = middleware.RequestLogger(a.Logger.Named("http"))(h)
	h = middleware.Recoverer(a.Logger)(h)
	return h
}

// Close waits for background uploads and releases connections.
func (a *App) Close() {
	if a.UploadJobs != nil {
		a.UploadJobs.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

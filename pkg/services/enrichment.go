package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/nps-engine/pkg/config"
	"github.com/ekaya-inc/nps-engine/pkg/ingest"
	"github.com/ekaya-inc/nps-engine/pkg/llm"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/models"
	"github.com/ekaya-inc/nps-engine/pkg/repositories"
	"github.com/ekaya-inc/nps-engine/pkg/retry"
)

// EnrichmentOptions tune a single run. Zero values fall back to configuration.
type EnrichmentOptions struct {
	BatchSize int `json:"batch_size,omitempty"`
	// MaxBatches stops the run after this many non-empty batches; 0 means no limit.
	MaxBatches int `json:"max_batches,omitempty"`
	// Force re-classifies responses that already have an enrichment for the model.
	Force bool `json:"force,omitempty"`
}

// EnrichmentService drives classification over stored responses.
type EnrichmentService interface {
	// Run enriches responses until the store runs dry or a limit is hit. On
	// context cancellation the partial result is returned with ctx.Err().
	// Credential and model errors from the provider abort the run.
	Run(ctx context.Context, opts EnrichmentOptions) (*models.EnrichmentRunResult, error)
	// Stats reports enrichment coverage for the configured model.
	Stats(ctx context.Context) (*models.EnrichmentStats, error)
}

type enrichmentService struct {
	responseRepo   repositories.ResponseRepository
	enrichmentRepo repositories.EnrichmentRepository
	registry       ThemeRegistry
	classifier     ClassificationService
	reconciler     *Reconciler
	cfg            config.EnrichmentConfig
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NewEnrichmentService creates a new EnrichmentService. The limiter paces
// classification calls at cfg.MaxRPM with no burst.
func NewEnrichmentService(
	responseRepo repositories.ResponseRepository,
	enrichmentRepo repositories.EnrichmentRepository,
	registry ThemeRegistry,
	classifier ClassificationService,
	cfg config.EnrichmentConfig,
	logger *zap.Logger,
) EnrichmentService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 300
	}
	if cfg.MaxRPM <= 0 {
		cfg.MaxRPM = 180
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxEmptyBatches <= 0 {
		cfg.MaxEmptyBatches = 3
	}

	return &enrichmentService{
		responseRepo:   responseRepo,
		enrichmentRepo: enrichmentRepo,
		registry:       registry,
		classifier:     classifier,
		reconciler:     NewReconciler(registry),
		cfg:            cfg,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxRPM)), 1),
		logger:         logger.Named("enrichment-service"),
	}
}

var _ EnrichmentService = (*enrichmentService)(nil)

func (s *enrichmentService) Run(ctx context.Context, opts EnrichmentOptions) (*models.EnrichmentRunResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	model := s.classifier.Model()
	result := &models.EnrichmentRunResult{Model: model}

	s.logger.Info("Starting enrichment run",
		zap.String("model", model),
		zap.String("prompt_version", s.classifier.PromptVersion()),
		zap.Int("batch_size", batchSize),
		zap.Int("max_batches", opts.MaxBatches),
		zap.Bool("force", opts.Force))

	var cursor *uuid.UUID
	emptyStreak := 0

	for opts.MaxBatches <= 0 || result.Batches < opts.MaxBatches {
		if err := ctx.Err(); err != nil {
			return s.interrupted(result, err)
		}

		var page []*models.UnenrichedResponse
		err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
			var err error
			page, err = s.responseRepo.ListUnenriched(ctx, model, cursor, batchSize, opts.Force)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(result, ctx.Err())
			}
			return result, fmt.Errorf("failed to fetch enrichment batch: %w", err)
		}

		if len(page) == 0 {
			emptyStreak++
			if emptyStreak >= s.cfg.MaxEmptyBatches {
				break
			}
			if err := sleepContext(ctx, s.cfg.EmptyBatchPause); err != nil {
				return s.interrupted(result, err)
			}
			continue
		}
		emptyStreak = 0
		result.Batches++

		if err := s.processBatch(ctx, result, page, opts.Force); err != nil {
			if ctx.Err() != nil {
				return s.interrupted(result, ctx.Err())
			}
			return result, err
		}

		last := page[len(page)-1].ID
		cursor = &last
		result.Cursor = cursor

		s.logger.Info("Batch complete",
			zap.Int("batch", result.Batches),
			zap.Int("size", len(page)),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
			zap.String("cursor", last.String()))
	}

	s.logger.Info("Enrichment run complete",
		zap.String("model", model),
		zap.Int("processed", result.Processed),
		zap.Int("skipped_no_comment", result.SkippedNoComment),
		zap.Int("already_enriched", result.AlreadyEnriched),
		zap.Int("failed", result.Failed),
		zap.Int("batches", result.Batches))

	return result, nil
}

func (s *enrichmentService) processBatch(ctx context.Context, result *models.EnrichmentRunResult, page []*models.UnenrichedResponse, force bool) error {
	known := s.registry.List(ctx)

	existing := map[uuid.UUID]bool{}
	if !force {
		ids := make([]uuid.UUID, len(page))
		for i, item := range page {
			ids[i] = item.ID
		}
		found, err := s.enrichmentRepo.ExistingFor(ctx, ids, result.Model)
		if err != nil {
			// Upsert by (response, model) keeps a repeat harmless.
			s.logger.Warn("Could not check existing enrichments",
				zap.String("error", logging.SanitizeError(err)))
		} else {
			existing = found
		}
	}

	for _, item := range page {
		if err := ctx.Err(); err != nil {
			return err
		}
		if existing[item.ID] {
			result.AlreadyEnriched++
			continue
		}

		comment := ""
		if item.NPSExplanation != nil {
			comment = *item.NPSExplanation
		}
		comment, ok := ingest.ParseComment(comment)
		if !ok || comment == "" {
			result.SkippedNoComment++
			continue
		}

		if err := s.enrichOne(ctx, item.ID, comment, known); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isSetupFailure(err) {
				s.logger.Error("Classification provider rejected the request; aborting run",
					zap.String("response_id", item.ID.String()),
					zap.String("error", logging.SanitizeError(err)))
				return fmt.Errorf("classification setup failure: %w", err)
			}
			result.Failed++
			s.logger.Warn("Skipping response after retries were exhausted",
				zap.String("response_id", item.ID.String()),
				zap.Int("attempts", s.cfg.MaxAttempts),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		result.Processed++
	}
	return nil
}

// enrichOne classifies, reconciles and upserts one response under the retry policy.
func (s *enrichmentService) enrichOne(ctx context.Context, responseID uuid.UUID, comment string, known []string) error {
	retryCfg := retry.ForAttempts(s.cfg.MaxAttempts, s.cfg.BaseDelay, s.cfg.MaxDelay)
	retryCfg.MaxJitter = min(retryCfg.MaxJitter, s.cfg.BaseDelay)
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("Enrichment attempt failed, retrying",
			zap.String("response_id", responseID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", logging.SanitizeError(err)))
	}

	return retry.Do(ctx, retryCfg, func() error {
		classification, err := s.classify(ctx, comment, known)
		if err != nil {
			return err
		}

		primary, themes := s.reconciler.Reconcile(ctx, classification.PrimaryTheme, classification.Themes, classification.NewTheme, known)

		enrichment := &models.EnrichmentResult{
			ResponseID:    responseID,
			Model:         s.classifier.Model(),
			PromptVersion: s.classifier.PromptVersion(),
			Themes:        themes,
			PrimaryTheme:  primary,
			Sentiment:     classification.Sentiment,
			Confidence:    classification.Confidence,
			Raw:           rawPayload(classification.Raw),
		}
		if err := s.enrichmentRepo.Upsert(ctx, enrichment); err != nil {
			return fmt.Errorf("failed to store enrichment: %w", err)
		}
		return nil
	})
}

// classify makes one paced classification call. An open circuit breaker is
// waited out here so its fast rejections do not use up the item's attempts.
func (s *enrichmentService) classify(ctx context.Context, comment string, known []string) (*models.Classification, error) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}

		classification, err := s.classifier.Classify(ctx, comment, known)
		if err == nil {
			return classification, nil
		}

		if wait, open := llm.CircuitRetryAfter(err); open {
			if wait <= 0 {
				wait = max(s.cfg.BaseDelay, 10*time.Millisecond)
			}
			s.logger.Debug("Classification provider circuit open, waiting for reset",
				zap.Duration("wait", wait))
			if err := sleepContext(ctx, wait); err != nil {
				return nil, retry.Permanent(err)
			}
			continue
		}

		var llmErr *llm.Error
		if errors.Is(err, context.Canceled) || (errors.As(err, &llmErr) && !llmErr.Retryable) {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("classification failed: %w", err)
	}
}

func (s *enrichmentService) Stats(ctx context.Context) (*models.EnrichmentStats, error) {
	model := s.classifier.Model()

	total, withComments, err := s.responseRepo.CountResponses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count responses: %w", err)
	}
	enriched, lastRun, err := s.enrichmentRepo.Summary(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize enrichments: %w", err)
	}

	stats := &models.EnrichmentStats{
		Model:                 model,
		TotalResponses:        total,
		ResponsesWithComments: withComments,
		EnrichedResponses:     enriched,
		LastRun:               lastRun,
	}
	if withComments > 0 {
		stats.Percentage = math.Round(float64(enriched)/float64(withComments)*10000) / 100
	}
	return stats, nil
}

func (s *enrichmentService) interrupted(result *models.EnrichmentRunResult, err error) (*models.EnrichmentRunResult, error) {
	s.logger.Warn("Enrichment run interrupted",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("batches", result.Batches))
	return result, err
}

// isSetupFailure reports provider errors no retry can fix.
func isSetupFailure(err error) bool {
	switch llm.GetErrorType(err) {
	case llm.ErrorTypeAuth, llm.ErrorTypeModel:
		return true
	}
	return false
}

// rawPayload keeps the model's JSON object when there is one and wraps anything else.
func rawPayload(content string) json.RawMessage {
	if candidate, err := llm.ExtractJSON(content); err == nil {
		return json.RawMessage(candidate)
	}
	wrapped, err := json.Marshal(map[string]string{"unparsed": content})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

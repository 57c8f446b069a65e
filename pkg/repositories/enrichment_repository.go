package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// EnrichmentRepository provides data access for AI enrichment results.
type EnrichmentRepository interface {
	// Upsert writes the result keyed by (response_id, model), overwriting any
	// existing row for the pair. ID and timestamps are filled in on return.
	Upsert(ctx context.Context, result *models.EnrichmentResult) error
	// ExistingFor returns which of ids already have an enrichment for model.
	ExistingFor(ctx context.Context, ids []uuid.UUID, model string) (map[uuid.UUID]bool, error)
	// Get returns nil, nil when the pair has no enrichment.
	Get(ctx context.Context, responseID uuid.UUID, model string) (*models.EnrichmentResult, error)
	// Summary returns the number of enriched responses for model and the latest update time.
	Summary(ctx context.Context, model string) (enriched int64, lastRun *time.Time, err error)
}

type enrichmentRepository struct {
	db database.Querier
}

// NewEnrichmentRepository creates a new EnrichmentRepository.
func NewEnrichmentRepository(db database.Querier) EnrichmentRepository {
	return &enrichmentRepository{db: db}
}

var _ EnrichmentRepository = (*enrichmentRepository)(nil)

func (r *enrichmentRepository) Upsert(ctx context.Context, result *models.EnrichmentResult) error {
	now := time.Now().UTC()

	raw := result.Raw
	if len(raw) == 0 || !json.Valid(raw) {
		raw = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO nps_ai_enrichment (
			response_id, model, prompt_version, themes, primary_theme,
			sentiment, confidence, raw, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT ON CONSTRAINT nps_ai_enrichment_response_model_key DO UPDATE SET
			prompt_version = EXCLUDED.prompt_version,
			themes = EXCLUDED.themes,
			primary_theme = EXCLUDED.primary_theme,
			sentiment = EXCLUDED.sentiment,
			confidence = EXCLUDED.confidence,
			raw = EXCLUDED.raw,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		result.ResponseID,
		result.Model,
		result.PromptVersion,
		result.Themes,
		result.PrimaryTheme,
		string(result.Sentiment),
		result.Confidence,
		raw,
		now,
	).Scan(&result.ID, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment: %w", err)
	}

	return nil
}

func (r *enrichmentRepository) ExistingFor(ctx context.Context, ids []uuid.UUID, model string) (map[uuid.UUID]bool, error) {
	existing := make(map[uuid.UUID]bool)
	if len(ids) == 0 {
		return existing, nil
	}

	query := `SELECT response_id FROM nps_ai_enrichment WHERE model = $1 AND response_id = ANY($2)`

	rows, err := r.db.Query(ctx, query, model, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing enrichments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrichments: %w", err)
	}

	return existing, nil
}

func (r *enrichmentRepository) Get(ctx context.Context, responseID uuid.UUID, model string) (*models.EnrichmentResult, error) {
	query := `
		SELECT id, response_id, model, prompt_version, themes, primary_theme,
		       sentiment, confidence, raw, created_at, updated_at
		FROM nps_ai_enrichment
		WHERE response_id = $1 AND model = $2`

	var (
		e         models.EnrichmentResult
		sentiment string
		raw       []byte
	)
	err := r.db.QueryRow(ctx, query, responseID, model).Scan(
		&e.ID, &e.ResponseID, &e.Model, &e.PromptVersion, &e.Themes, &e.PrimaryTheme,
		&sentiment, &e.Confidence, &raw, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get enrichment: %w", err)
	}

	e.Sentiment = models.Sentiment(sentiment)
	e.Raw = json.RawMessage(raw)
	return &e, nil
}

func (r *enrichmentRepository) Summary(ctx context.Context, model string) (int64, *time.Time, error) {
	query := `SELECT COUNT(DISTINCT response_id), MAX(updated_at) FROM nps_ai_enrichment WHERE model = $1`

	var (
		enriched int64
		lastRun  *time.Time
	)
	if err := r.db.QueryRow(ctx, query, model).Scan(&enriched, &lastRun); err != nil {
		return 0, nil, fmt.Errorf("failed to summarize enrichments: %w", err)
	}
	return enriched, lastRun, nil
}

package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// ResponseRepository provides data access for normalized survey responses.
type ResponseRepository interface {
	// InsertBatch writes all responses in one COPY and returns the rows written.
	InsertBatch(ctx context.Context, responses []*models.NormalizedResponse) (int64, error)
	// ListUnenriched returns the next keyset page of responses with a usable
	// comment and no enrichment for model. after is exclusive; nil starts at the beginning.
	ListUnenriched(ctx context.Context, model string, after *uuid.UUID, limit int, force bool) ([]*models.UnenrichedResponse, error)
	// CountResponses returns the total number of responses and those with a usable comment.
	CountResponses(ctx context.Context) (total int64, withComments int64, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedResponse, error)
}

type responseRepository struct {
	db database.Querier
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(db database.Querier) ResponseRepository {
	return &responseRepository{db: db}
}

var _ ResponseRepository = (*responseRepository)(nil)

func (r *responseRepository) InsertBatch(ctx context.Context, responses []*models.NormalizedResponse) (int64, error) {
	if len(responses) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "raw_id", "survey_name", "nps_score", "nps_category",
		"nps_explanation", "word_count", "has_explanation", "gender", "age_range",
		"tenure", "creation_date", "title", "subscription_key", "subscription_type",
		"had_trial", "exit_reason", "created_at",
	}

	rows := make([][]any, len(responses))
	for i, resp := range responses {
		rows[i] = []any{
			resp.ID, resp.RawID, resp.SurveyName, int16(resp.NPSScore), string(resp.NPSCategory),
			resp.NPSExplanation, resp.WordCount, resp.HasExplanation, resp.Gender, resp.AgeRange,
			resp.Tenure, resp.CreationDate, resp.Title, resp.SubscriptionKey, resp.SubscriptionType,
			resp.HadTrial, resp.ExitReason, resp.CreatedAt,
		}
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"nps_response"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to insert responses: %w", err)
	}
	return n, nil
}

func (r *responseRepository) ListUnenriched(ctx context.Context, model string, after *uuid.UUID, limit int, force bool) ([]*models.UnenrichedResponse, error) {
	query := `SELECT id, nps_explanation FROM get_unenriched_batch($1, $2, $3, $4)`

	rows, err := r.db.Query(ctx, query, limit, model, after, force)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched responses: %w", err)
	}
	defer rows.Close()

	var page []*models.UnenrichedResponse
	for rows.Next() {
		var u models.UnenrichedResponse
		if err := rows.Scan(&u.ID, &u.NPSExplanation); err != nil {
			return nil, fmt.Errorf("failed to scan unenriched response: %w", err)
		}
		page = append(page, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unenriched responses: %w", err)
	}

	return page, nil
}

func (r *responseRepository) CountResponses(ctx context.Context) (int64, int64, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (
		           WHERE nps_explanation IS NOT NULL
		             AND lower(btrim(nps_explanation)) NOT IN ` + commentPlaceholders + `
		       )
		FROM nps_response`

	var total, withComments int64
	if err := r.db.QueryRow(ctx, query).Scan(&total, &withComments); err != nil {
		return 0, 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return total, withComments, nil
}

func (r *responseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NormalizedResponse, error) {
	query := `
		SELECT id, raw_id, survey_name, nps_score, nps_category, nps_explanation,
		       word_count, has_explanation, gender, age_range, tenure, creation_date,
		       title, subscription_key, subscription_type, had_trial, exit_reason, created_at
		FROM nps_response
		WHERE id = $1`

	var (
		resp     models.NormalizedResponse
		score    int16
		category string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&resp.ID, &resp.RawID, &resp.SurveyName, &score, &category, &resp.NPSExplanation,
		&resp.WordCount, &resp.HasExplanation, &resp.Gender, &resp.AgeRange, &resp.Tenure, &resp.CreationDate,
		&resp.Title, &resp.SubscriptionKey, &resp.SubscriptionType, &resp.HadTrial, &resp.ExitReason, &resp.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	resp.NPSScore = int(score)
	resp.NPSCategory = models.NPSCategory(category)
	return &resp, nil
}

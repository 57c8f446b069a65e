//go:build integration

package migrations_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/nps-engine/pkg/testhelpers"
)

// Test_001_NPSSchema verifies the four tables and the seeded taxonomy.
func Test_001_NPSSchema(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Truncate(t)
	ctx := context.Background()

	for _, table := range []string{"nps_raw", "nps_response", "themes", "nps_ai_enrichment"} {
		var exists bool
		err := engineDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	rows, err := engineDB.DB.Pool.Query(ctx, `SELECT slug FROM themes ORDER BY slug`)
	require.NoError(t, err)
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		require.NoError(t, rows.Scan(&slug))
		slugs = append(slugs, slug)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"content-kwaliteit", "merkvertrouwen", "overige", "pricing"}, slugs)
}

// Test_001_NPSSchema_Constraints verifies score, category, theme count and
// the one-enrichment-per-model rule are enforced by the database.
func Test_001_NPSSchema_Constraints(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Truncate(t)
	ctx := context.Background()
	pool := engineDB.DB.Pool

	rawID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO nps_raw (id, source_filename, row_number, file_type, encoding, payload)
		VALUES ($1, 'export.csv', 1, 'csv', 'utf-8', '{}'::jsonb)
	`, rawID)
	require.NoError(t, err)

	insertResponse := func(score int, category string) (uuid.UUID, error) {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO nps_response (id, raw_id, survey_name, nps_score, nps_category, creation_date)
			VALUES ($1, $2, 'Exit survey', $3, $4, '2024-03-01')
		`, id, rawID, score, category)
		return id, err
	}

	_, err = insertResponse(11, "promoter")
	assert.Error(t, err, "score above 10 should be rejected")

	_, err = insertResponse(5, "unhappy")
	assert.Error(t, err, "unknown category should be rejected")

	responseID, err := insertResponse(9, "promoter")
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'gpt-4o-mini', '{}', 'overige', 'neutral', 0.5)
	`, responseID)
	assert.Error(t, err, "empty theme list should be rejected")

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'gpt-4o-mini', '{a,b,c,d,e}', 'a', 'neutral', 0.5)
	`, responseID)
	assert.Error(t, err, "more than four themes should be rejected")

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'gpt-4o-mini', '{pricing}', 'pricing', 'detractor', 1.5)
	`, responseID)
	assert.Error(t, err, "confidence above 1 should be rejected")

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'gpt-4o-mini', '{pricing}', 'pricing', 'detractor', 0.8)
	`, responseID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'gpt-4o-mini', '{overige}', 'overige', 'neutral', 0.6)
	`, responseID)
	assert.Error(t, err, "second row for the same response and model should be rejected")

	_, err = pool.Exec(ctx, `
		INSERT INTO nps_ai_enrichment (response_id, model, themes, primary_theme, sentiment, confidence)
		VALUES ($1, 'claude-3-5-haiku', '{overige}', 'overige', 'neutral', 0.6)
	`, responseID)
	assert.NoError(t, err, "a different model may enrich the same response")
}

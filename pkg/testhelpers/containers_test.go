//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestEngineDB_MigratedSchema(t *testing.T) {
	engineDB := GetEngineDB(t)

	ctx := context.Background()

	var tableCount int
	err := engineDB.DB.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name IN ('nps_raw', 'nps_response', 'themes', 'nps_ai_enrichment')`).
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}
	if tableCount != 4 {
		t.Errorf("expected 4 application tables, got %d", tableCount)
	}

	var seeded int
	if err := engineDB.DB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM themes`).Scan(&seeded); err != nil {
		t.Fatalf("failed to count themes: %v", err)
	}
	if seeded < 4 {
		t.Errorf("expected seeded bootstrap taxonomy, got %d themes", seeded)
	}
}

func TestGetRedis(t *testing.T) {
	client := GetRedis(t)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

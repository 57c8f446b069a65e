package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Content Kwaliteit", "content-kwaliteit"},
		{"content_kwaliteit", "content-kwaliteit"},
		{"  Cóntent--Kwaliteit!  ", "content-kwaliteit"},
		{"Prijs/Kwaliteit (abonnement)", "prijs-kwaliteit-abonnement"},
		{"Überzeugend", "uberzeugend"},
		{"???", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestThemeRegistry_Ensure_IsIdempotentAcrossSpellings(t *testing.T) {
	repo := newMockThemeRepo()
	registry := NewThemeRegistry(repo, "", zap.NewNop())
	ctx := context.Background()

	first := registry.Ensure(ctx, "Content Kwaliteit")
	second := registry.Ensure(ctx, "content-kwaliteit ")
	third := registry.Ensure(ctx, "CONTENT_KWALITEIT")

	assert.Equal(t, "Content Kwaliteit", first)
	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, repo.inserts)
	assert.Equal(t, []string{"Content Kwaliteit"}, repo.names())
}

func TestThemeRegistry_Ensure_ExistingThemeKeepsFirstSeenName(t *testing.T) {
	repo := newMockThemeRepo("content_kwaliteit")
	registry := NewThemeRegistry(repo, "", zap.NewNop())

	assert.Equal(t, "content_kwaliteit", registry.Ensure(context.Background(), "Content Kwaliteit"))
	assert.Equal(t, 0, repo.inserts)
}

func TestThemeRegistry_Ensure_EmptyFallsBackToOther(t *testing.T) {
	repo := newMockThemeRepo("overige")
	registry := NewThemeRegistry(repo, "", zap.NewNop())

	assert.Equal(t, "overige", registry.Ensure(context.Background(), "   "))
	assert.Equal(t, "overige", registry.Ensure(context.Background(), "!!!"))
	assert.Equal(t, 0, repo.inserts)
}

func TestThemeRegistry_Ensure_RereadsAfterLosingInsertRace(t *testing.T) {
	repo := newMockThemeRepo()
	repo.raceWinner = &models.Theme{Name: "Bezorging", Slug: "bezorging"}
	registry := NewThemeRegistry(repo, "", zap.NewNop())

	got := registry.Ensure(context.Background(), "bezorging")

	assert.Equal(t, "Bezorging", got)
	assert.Equal(t, 0, repo.inserts)
	assert.Equal(t, []string{"Bezorging"}, repo.names())
}

func TestThemeRegistry_Ensure_CachesLookups(t *testing.T) {
	repo := newMockThemeRepo("pricing")
	registry := NewThemeRegistry(repo, "", zap.NewNop())
	ctx := context.Background()

	registry.Ensure(ctx, "Pricing")
	calls := repo.getCalls
	registry.Ensure(ctx, "PRICING")

	assert.Equal(t, calls, repo.getCalls, "second lookup should be served from cache")
}

func TestThemeRegistry_StoreUnavailable(t *testing.T) {
	repo := newMockThemeRepo()
	repo.err = errors.New("dial tcp: connection refused")
	registry := NewThemeRegistry(repo, "", zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, "Nieuw Thema", registry.Ensure(ctx, "  Nieuw Thema "))
	assert.Equal(t, BootstrapTaxonomy, registry.List(ctx))
}

func TestThemeRegistry_List_EmptyStoreServesBootstrap(t *testing.T) {
	registry := NewThemeRegistry(newMockThemeRepo(), "", zap.NewNop())
	assert.Equal(t, BootstrapTaxonomy, registry.List(context.Background()))
}

func TestThemeRegistry_List_ReseedsCache(t *testing.T) {
	repo := newMockThemeRepo("content_kwaliteit", "pricing", "merkvertrouwen", "overige")
	registry := NewThemeRegistry(repo, "", zap.NewNop())
	ctx := context.Background()

	names := registry.List(ctx)
	require.Equal(t, []string{"content_kwaliteit", "pricing", "merkvertrouwen", "overige"}, names)

	before := repo.getCalls
	assert.Equal(t, "merkvertrouwen", registry.Ensure(ctx, "Merkvertrouwen"))
	assert.Equal(t, before, repo.getCalls)
}

func TestThemeRegistry_OtherTheme_Configurable(t *testing.T) {
	repo := newMockThemeRepo()
	registry := NewThemeRegistry(repo, "Other", zap.NewNop())

	assert.Equal(t, "Other", registry.OtherTheme(context.Background()))
	assert.Equal(t, "Other", registry.Ensure(context.Background(), ""))
}

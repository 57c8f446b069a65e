package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// ThemeRepository provides data access for the theme taxonomy.
type ThemeRepository interface {
	// List returns every theme in creation order.
	List(ctx context.Context) ([]*models.Theme, error)
	// GetBySlug returns nil, nil when no theme has the slug.
	GetBySlug(ctx context.Context, slug string) (*models.Theme, error)
	// Insert creates the theme unless the slug exists. created is false when
	// another writer got there first; the caller should re-read by slug.
	Insert(ctx context.Context, name, slug string) (theme *models.Theme, created bool, err error)
}

type themeRepository struct {
	db database.Querier
}

// NewThemeRepository creates a new ThemeRepository.
func NewThemeRepository(db database.Querier) ThemeRepository {
	return &themeRepository{db: db}
}

var _ ThemeRepository = (*themeRepository)(nil)

func (r *themeRepository) List(ctx context.Context) ([]*models.Theme, error) {
	query := `SELECT id, name, slug, created_at FROM themes ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	defer rows.Close()

	var themes []*models.Theme
	for rows.Next() {
		var t models.Theme
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		themes = append(themes, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating themes: %w", err)
	}

	return themes, nil
}

func (r *themeRepository) GetBySlug(ctx context.Context, slug string) (*models.Theme, error) {
	query := `SELECT id, name, slug, created_at FROM themes WHERE slug = $1`

	var t models.Theme
	err := r.db.QueryRow(ctx, query, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get theme by slug: %w", err)
	}

	return &t, nil
}

func (r *themeRepository) Insert(ctx context.Context, name, slug string) (*models.Theme, bool, error) {
	query := `
		INSERT INTO themes (name, slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO NOTHING
		RETURNING id, name, slug, created_at`

	var t models.Theme
	err := r.db.QueryRow(ctx, query, name, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert theme: %w", err)
	}

	return &t, true, nil
}

package services

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/repositories"
)

// DefaultOtherTheme is the catch-all label used when nothing else applies.
const DefaultOtherTheme = "overige"

// BootstrapTaxonomy is served by List when the theme store cannot be read.
var BootstrapTaxonomy = []string{"content_kwaliteit", "pricing", "merkvertrouwen", DefaultOtherTheme}

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name, folds accents and collapses every run of other
// characters to a single '-'. "Content Kwaliteit", "content_kwaliteit" and
// "Cóntent-kwaliteit " all map to "content-kwaliteit".
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(name),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}
	return strings.Trim(nonSlugRun.ReplaceAllString(folded, "-"), "-")
}

// ThemeRegistry is the canonical theme taxonomy. It never fails its caller:
// when the store is unavailable it degrades to passthrough names and the
// bootstrap taxonomy.
type ThemeRegistry interface {
	// Ensure returns the canonical display name for name, creating the theme on first use.
	Ensure(ctx context.Context, name string) string
	// List returns known theme names in creation order and reseeds the lookup cache.
	List(ctx context.Context) []string
	// OtherTheme returns the canonical catch-all theme.
	OtherTheme(ctx context.Context) string
}

type themeRegistry struct {
	repo       repositories.ThemeRepository
	otherTheme string
	logger     *zap.Logger

	mu     sync.RWMutex
	bySlug map[string]string
}

// NewThemeRegistry creates a ThemeRegistry backed by repo. otherTheme
// defaults to DefaultOtherTheme when empty.
func NewThemeRegistry(repo repositories.ThemeRepository, otherTheme string, logger *zap.Logger) ThemeRegistry {
	if strings.TrimSpace(otherTheme) == "" {
		otherTheme = DefaultOtherTheme
	}
	return &themeRegistry{
		repo:       repo,
		otherTheme: strings.TrimSpace(otherTheme),
		logger:     logger.Named("theme-registry"),
		bySlug:     make(map[string]string),
	}
}

var _ ThemeRegistry = (*themeRegistry)(nil)

func (r *themeRegistry) Ensure(ctx context.Context, name string) string {
	candidate := strings.TrimSpace(name)
	slug := Slugify(candidate)
	if slug == "" {
		candidate = r.otherTheme
		slug = Slugify(candidate)
	}

	if cached, ok := r.cached(slug); ok {
		return cached
	}

	existing, err := r.repo.GetBySlug(ctx, slug)
	if err != nil {
		r.degraded("lookup", candidate, err)
		return candidate
	}
	if existing != nil {
		r.remember(slug, existing.Name)
		return existing.Name
	}

	created, ok, err := r.repo.Insert(ctx, candidate, slug)
	if err != nil {
		r.degraded("insert", candidate, err)
		return candidate
	}
	if ok {
		r.logger.Info("Registered new theme", zap.String("name", created.Name), zap.String("slug", slug))
		r.remember(slug, created.Name)
		return created.Name
	}

	// Another writer inserted the slug between our lookup and insert.
	winner, err := r.repo.GetBySlug(ctx, slug)
	if err != nil || winner == nil {
		r.degraded("re-read", candidate, err)
		return candidate
	}
	r.remember(slug, winner.Name)
	return winner.Name
}

func (r *themeRegistry) List(ctx context.Context) []string {
	themes, err := r.repo.List(ctx)
	if err != nil || len(themes) == 0 {
		if err != nil {
			r.degraded("list", "", err)
		}
		return append([]string(nil), BootstrapTaxonomy...)
	}

	fresh := make(map[string]string, len(themes))
	names := make([]string, 0, len(themes))
	for _, t := range themes {
		fresh[t.Slug] = t.Name
		names = append(names, t.Name)
	}

	r.mu.Lock()
	r.bySlug = fresh
	r.mu.Unlock()

	return names
}

func (r *themeRegistry) OtherTheme(ctx context.Context) string {
	return r.Ensure(ctx, r.otherTheme)
}

func (r *themeRegistry) cached(slug string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bySlug[slug]
	return name, ok
}

func (r *themeRegistry) remember(slug, name string) {
	r.mu.Lock()
	r.bySlug[slug] = name
	r.mu.Unlock()
}

func (r *themeRegistry) degraded(op, candidate string, err error) {
	fields := []zap.Field{zap.String("operation", op)}
	if candidate != "" {
		fields = append(fields, zap.String("theme", candidate))
	}
	if err != nil {
		fields = append(fields, zap.String("error", logging.SanitizeError(err)))
	}
	r.logger.Warn("Theme store unavailable, continuing without it", fields...)
}

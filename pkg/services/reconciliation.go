package services

import (
	"context"
	"strings"
)

// MaxThemesPerResponse bounds the stored theme list, primary included.
const MaxThemesPerResponse = 4

// Reconciler maps a raw classification onto the canonical taxonomy.
type Reconciler struct {
	registry ThemeRegistry
}

// NewReconciler creates a Reconciler that canonicalizes through registry.
func NewReconciler(registry ThemeRegistry) *Reconciler {
	return &Reconciler{registry: registry}
}

// Reconcile returns a canonical primary theme and a deduplicated theme list of
// at most MaxThemesPerResponse entries that always contains the primary.
// known is the theme list the classifier was shown.
func (r *Reconciler) Reconcile(ctx context.Context, primary string, themes []string, newTheme string, known []string) (string, []string) {
	primary = strings.TrimSpace(primary)
	newTheme = strings.TrimSpace(newTheme)

	knownSlugs := make(map[string]struct{}, len(known))
	for _, name := range known {
		knownSlugs[Slugify(name)] = struct{}{}
	}

	canonicalPrimary := ""
	if newTheme != "" && Slugify(newTheme) != "" {
		_, primaryKnown := knownSlugs[Slugify(primary)]
		if primary == "" || !primaryKnown || Slugify(primary) == Slugify(newTheme) {
			canonicalPrimary = r.registry.Ensure(ctx, newTheme)
		}
	}

	seen := make(map[string]struct{}, len(themes)+1)
	canonical := make([]string, 0, len(themes)+1)
	add := func(name string) {
		slug := Slugify(name)
		if _, dup := seen[slug]; dup {
			return
		}
		seen[slug] = struct{}{}
		canonical = append(canonical, name)
	}
	for _, theme := range themes {
		if strings.TrimSpace(theme) == "" {
			continue
		}
		add(r.registry.Ensure(ctx, theme))
	}

	if canonicalPrimary == "" {
		switch {
		case primary != "" && Slugify(primary) != "":
			canonicalPrimary = r.registry.Ensure(ctx, primary)
		case len(canonical) > 0:
			canonicalPrimary = canonical[0]
		default:
			canonicalPrimary = r.registry.OtherTheme(ctx)
		}
	}

	primarySlug := Slugify(canonicalPrimary)
	if _, present := seen[primarySlug]; present {
		for i, name := range canonical {
			if Slugify(name) == primarySlug {
				canonical[i] = canonicalPrimary
			}
		}
	} else {
		canonical = append([]string{canonicalPrimary}, canonical...)
	}
	if len(canonical) <= MaxThemesPerResponse {
		return canonicalPrimary, canonical
	}

	// Keep the primary plus the earliest others, in their original order.
	result := make([]string, 0, MaxThemesPerResponse)
	others := MaxThemesPerResponse - 1
	for _, name := range canonical {
		if name == canonicalPrimary {
			result = append(result, name)
			continue
		}
		if others > 0 {
			result = append(result, name)
			others--
		}
	}
	return canonicalPrimary, result
}

package prompts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed classification.yaml
var classificationYAML []byte

// ClassificationPrompt is one versioned prompt contract for theme/sentiment labelling.
type ClassificationPrompt struct {
	Version        string `yaml:"-"`
	Language       string `yaml:"language"`
	System         string `yaml:"system"`
	ThemesHeading  string `yaml:"themes_heading"`
	CommentHeading string `yaml:"comment_heading"`
}

type classificationCatalog struct {
	Versions map[string]*ClassificationPrompt `yaml:"versions"`
}

// LoadClassificationPrompt returns the embedded prompt for version.
func LoadClassificationPrompt(version string) (*ClassificationPrompt, error) {
	return parseClassificationPrompt(classificationYAML, version)
}

func parseClassificationPrompt(data []byte, version string) (*ClassificationPrompt, error) {
	var catalog classificationCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}

	p, ok := catalog.Versions[version]
	if !ok || p == nil {
		known := make([]string, 0, len(catalog.Versions))
		for v := range catalog.Versions {
			known = append(known, v)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown prompt version %q (available: %s)", version, strings.Join(known, ", "))
	}
	if strings.TrimSpace(p.System) == "" {
		return nil, fmt.Errorf("prompt version %q has an empty system message", version)
	}

	p.Version = version
	p.System = strings.TrimSpace(p.System)
	return p, nil
}

// BuildUserMessage lists the known themes followed by the comment.
// Callers cap and truncate; this only formats.
func (p *ClassificationPrompt) BuildUserMessage(knownThemes []string, comment string) string {
	var sb strings.Builder

	sb.WriteString(p.ThemesHeading)
	sb.WriteString("\n")
	for _, theme := range knownThemes {
		sb.WriteString("- ")
		sb.WriteString(theme)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(p.CommentHeading)
	sb.WriteString("\n")
	sb.WriteString(comment)

	return sb.String()
}

package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClassificationPrompt(t *testing.T) {
	for _, version := range []string{"nl-v1", "en-v1"} {
		t.Run(version, func(t *testing.T) {
			p, err := LoadClassificationPrompt(version)
			require.NoError(t, err)

			assert.Equal(t, version, p.Version)
			assert.NotEmpty(t, p.ThemesHeading)
			assert.NotEmpty(t, p.CommentHeading)
			for _, field := range []string{"primary_theme", "themes", "sentiment", "confidence", "new_theme"} {
				assert.Contains(t, p.System, field, "system prompt should describe %s", field)
			}
			assert.False(t, strings.HasSuffix(p.System, "\n"))
		})
	}
}

func TestLoadClassificationPrompt_UnknownVersion(t *testing.T) {
	_, err := LoadClassificationPrompt("nl-v9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "en-v1, nl-v1")
}

func TestParseClassificationPrompt_Invalid(t *testing.T) {
	_, err := parseClassificationPrompt([]byte("versions: [unterminated"), "nl-v1")
	assert.Error(t, err)

	_, err = parseClassificationPrompt([]byte("versions:\n  x:\n    system: \"  \"\n"), "x")
	assert.Error(t, err)
}

func TestBuildUserMessage(t *testing.T) {
	p, err := LoadClassificationPrompt("nl-v1")
	require.NoError(t, err)

	msg := p.BuildUserMessage([]string{"content_kwaliteit", "pricing"}, "Te duur voor wat je krijgt")

	assert.Equal(t, "Huidige themas:\n- content_kwaliteit\n- pricing\n\nReactie:\nTe duur voor wat je krijgt", msg)
}

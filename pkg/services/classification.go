package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/config"
	"github.com/ekaya-inc/nps-engine/pkg/jsonutil"
	"github.com/ekaya-inc/nps-engine/pkg/llm"
	"github.com/ekaya-inc/nps-engine/pkg/models"
	"github.com/ekaya-inc/nps-engine/pkg/prompts"
)

const (
	defaultMaxCommentChars = 4000
	defaultMaxKnownThemes  = 200
	// DefaultConfidence is used when the model omits confidence or reports one outside [0,1].
	DefaultConfidence = 0.6
)

// ClassificationService labels one comment with themes, sentiment and confidence.
type ClassificationService interface {
	// Classify returns an error only when the provider call fails.
	// Unparseable model output yields the default classification.
	Classify(ctx context.Context, comment string, knownThemes []string) (*models.Classification, error)
	Model() string
	PromptVersion() string
}

type classificationService struct {
	client          llm.LLMClient
	prompt          *prompts.ClassificationPrompt
	temperature     float64
	maxCommentChars int
	maxKnownThemes  int
	logger          *zap.Logger
}

// NewClassificationService creates a ClassificationService using the prompt
// version named in llmCfg.
func NewClassificationService(
	client llm.LLMClient,
	llmCfg config.LLMConfig,
	enrichCfg config.EnrichmentConfig,
	logger *zap.Logger,
) (ClassificationService, error) {
	prompt, err := prompts.LoadClassificationPrompt(llmCfg.PromptVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification prompt: %w", err)
	}

	maxChars := enrichCfg.MaxCommentChars
	if maxChars <= 0 {
		maxChars = defaultMaxCommentChars
	}
	maxThemes := enrichCfg.MaxKnownThemes
	if maxThemes <= 0 {
		maxThemes = defaultMaxKnownThemes
	}

	return &classificationService{
		client:          client,
		prompt:          prompt,
		temperature:     llmCfg.Temperature,
		maxCommentChars: maxChars,
		maxKnownThemes:  maxThemes,
		logger:          logger.Named("classification-service"),
	}, nil
}

var _ ClassificationService = (*classificationService)(nil)

func (s *classificationService) Model() string {
	return s.client.GetModel()
}

func (s *classificationService) PromptVersion() string {
	return s.prompt.Version
}

func (s *classificationService) Classify(ctx context.Context, comment string, knownThemes []string) (*models.Classification, error) {
	if len(knownThemes) > s.maxKnownThemes {
		knownThemes = knownThemes[:s.maxKnownThemes]
	}
	userMessage := s.prompt.BuildUserMessage(knownThemes, truncateRunes(comment, s.maxCommentChars))

	resp, err := s.client.GenerateResponse(ctx, userMessage, s.prompt.System, s.temperature, true)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Classification response",
		zap.String("model", s.client.GetModel()),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))

	return ParseClassification(resp.Content), nil
}

// classificationPayload accepts loosely typed fields; each is coerced separately.
type classificationPayload struct {
	PrimaryTheme json.RawMessage `json:"primary_theme"`
	Themes       json.RawMessage `json:"themes"`
	Sentiment    json.RawMessage `json:"sentiment"`
	Confidence   json.RawMessage `json:"confidence"`
	NewTheme     json.RawMessage `json:"new_theme"`
}

// ParseClassification reads model output as strict JSON, then as the first
// balanced JSON object in the text. When neither works the result is empty
// themes, neutral sentiment and DefaultConfidence.
func ParseClassification(content string) *models.Classification {
	result := &models.Classification{
		Themes:     []string{},
		Sentiment:  models.SentimentNeutral,
		Confidence: DefaultConfidence,
		Raw:        content,
	}

	payload, ok := decodePayload(content)
	if !ok {
		return result
	}

	result.PrimaryTheme = strings.TrimSpace(jsonutil.FlexibleString(payload.PrimaryTheme))
	result.NewTheme = strings.TrimSpace(jsonutil.FlexibleString(payload.NewTheme))
	if themes := jsonutil.FlexibleStringSlice(payload.Themes); themes != nil {
		result.Themes = themes
	}
	result.Sentiment = models.ParseSentiment(jsonutil.FlexibleString(payload.Sentiment))
	if c, ok := jsonutil.FlexibleFloat(payload.Confidence); ok && c >= 0 && c <= 1 {
		result.Confidence = c
	}
	return result
}

func decodePayload(content string) (*classificationPayload, bool) {
	var payload classificationPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err == nil {
		return &payload, true
	}

	candidate, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentiment is the classifier's reading of a comment.
type Sentiment string

const (
	SentimentPromoter  Sentiment = "promoter"
	SentimentPassive   Sentiment = "passive"
	SentimentDetractor Sentiment = "detractor"
	SentimentNeutral   Sentiment = "neutral"
)

// ParseSentiment maps a label case-insensitively; anything unknown is neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPromoter:
		return SentimentPromoter
	case SentimentPassive:
		return SentimentPassive
	case SentimentDetractor:
		return SentimentDetractor
	default:
		return SentimentNeutral
	}
}

// Valid reports whether s is one of the four labels.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPromoter, SentimentPassive, SentimentDetractor, SentimentNeutral:
		return true
	}
	return false
}

// Theme is a taxonomy entry. Slug is unique; Name is the first-seen display name.
type Theme struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Classification is the parsed (but not yet reconciled) model output.
type Classification struct {
	PrimaryTheme string    `json:"primary_theme"`
	Themes       []string  `json:"themes"`
	Sentiment    Sentiment `json:"sentiment"`
	Confidence   float64   `json:"confidence"`
	NewTheme     string    `json:"new_theme,omitempty"`
	// Raw is the model text the classification was parsed from.
	Raw string `json:"-"`
}

// EnrichmentResult is the stored enrichment for one (response, model) pair.
type EnrichmentResult struct {
	ID            int64           `json:"id"`
	ResponseID    uuid.UUID       `json:"response_id"`
	Model         string          `json:"model"`
	PromptVersion string          `json:"prompt_version"`
	Themes        []string        `json:"themes"`
	PrimaryTheme  string          `json:"primary_theme"`
	Sentiment     Sentiment       `json:"sentiment"`
	Confidence    float64         `json:"confidence"`
	Raw           json.RawMessage `json:"raw"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UnenrichedResponse is one row of a keyset page of enrichment candidates.
type UnenrichedResponse struct {
	ID             uuid.UUID
	NPSExplanation *string
}

// EnrichmentRunResult summarizes one invocation of the batch driver.
type EnrichmentRunResult struct {
	Model            string     `json:"model"`
	Processed        int        `json:"processed"`
	SkippedNoComment int        `json:"skipped_no_comment"`
	Failed           int        `json:"failed"`
	AlreadyEnriched  int        `json:"already_enriched"`
	Batches          int        `json:"batches"`
	Cursor           *uuid.UUID `json:"cursor,omitempty"`
}

// EnrichmentStats reports enrichment coverage for a model.
type EnrichmentStats struct {
	Model                 string     `json:"model"`
	TotalResponses        int64      `json:"total_responses"`
	ResponsesWithComments int64      `json:"responses_with_comments"`
	EnrichedResponses     int64      `json:"enriched_responses"`
	Percentage            float64    `json:"percentage"`
	LastRun               *time.Time `json:"last_run,omitempty"`
}

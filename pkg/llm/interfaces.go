// Package llm provides chat-completion clients for OpenAI-compatible and
// Anthropic endpoints behind one interface.
package llm

import (
	"context"
)

// LLMClient defines the interface for LLM operations.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse sends one system + user exchange. With jsonMode set the
	// provider is asked for a single JSON object where it supports that.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// GenerateResponseResult is the text of a completion plus token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*breakerClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)

package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewFromConfig builds the configured provider client wrapped in a circuit breaker.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	clientCfg := &Config{
		Endpoint:  cfg.BaseURL,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}

	var (
		client LLMClient
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		client, err = NewClient(clientCfg, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	logger.Info("LLM client configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", client.GetModel()),
		zap.String("endpoint", client.GetEndpoint()))

	return WithCircuitBreaker(client, NewCircuitBreaker(DefaultCircuitBreakerConfig())), nil
}

// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// NewClient builds the process-wide model client: one client per configured
// tier, routed by tier and throttled by a shared rate limiter.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	built := make(map[string]schemas.LLMClient)
	get := func(alias string) (schemas.LLMClient, error) {
		if c, ok := built[alias]; ok {
			return c, nil
		}
		mc, ok := cfg.Models[alias]
		if !ok {
			return nil, fmt.Errorf("model %q is not defined under llm.models", alias)
		}
		c, err := NewModelClient(ctx, mc, logger)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", alias, err)
		}
		built[alias] = c
		return c, nil
	}

	fast, err := get(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := get(cfg.DefaultPowerfulModel)
	if err != nil {
		return nil, err
	}
	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedClient(router, cfg.RequestsPerMinute, cfg.Burst, logger), nil
}

// NewModelClient creates a client for a single model definition.
func NewModelClient(ctx context.Context, mc config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch mc.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, mc, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(mc, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]", mc.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/config"
)

// NewClient builds a tier router from the configuration. When both tiers name
// the same model a single underlying client is shared.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	built := make(map[string]schemas.LLMClient, 2)
	get := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		modelCfg, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("model %q is not configured under llm.models", name)
		}
		c, err := newProviderClient(ctx, modelCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %q: %w", name, err)
		}
		built[name] = c
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
	return NewLLMRouter(logger, fast, powerful)
}

func newProviderClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

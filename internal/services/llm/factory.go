package llm

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
)

// NewLLMService builds the content-understanding service for the
// configured default provider. Model-string detection lets an explicit
// model name override the provider choice; with no API key configured
// the offline provider keeps the pipeline runnable.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderClaude
	}

	// A model name set on the other provider's config wins over the
	// default, so "gemini-..." in config selects Gemini
	if detected := detectProviderFromModels(cfg); detected != "" {
		provider = detected
	}

	switch provider {
	case common.LLMProviderClaude:
		if cfg.Claude.APIKey == "" {
			return offlineService(logger), nil
		}
		p, err := newClaudeProvider(&cfg.Claude, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude provider: %w", err)
		}
		return NewService(p, parseRateLimit(cfg.Claude.RateLimit, time.Second), logger), nil

	case common.LLMProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return offlineService(logger), nil
		}
		p, err := newGeminiProvider(&cfg.Gemini, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		return NewService(p, parseRateLimit(cfg.Gemini.RateLimit, 4*time.Second), logger), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// detectProviderFromModels infers the provider from explicit model names
func detectProviderFromModels(cfg *common.Config) common.LLMProvider {
	if isModelOf(cfg.Claude.Model, "claude") && cfg.Claude.APIKey != "" {
		return common.LLMProviderClaude
	}
	if isModelOf(cfg.Gemini.Model, "gemini") && cfg.Gemini.APIKey != "" {
		return common.LLMProviderGemini
	}
	return ""
}

func isModelOf(model, prefix string) bool {
	return len(model) >= len(prefix) && model[:len(prefix)] == prefix
}

func offlineService(logger arbor.ILogger) interfaces.LLMService {
	return NewService(newOfflineProvider(logger), 0, logger)
}

func parseRateLimit(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

package llm

import (
	"context"
	"fmt"
	"time"

	"deepreport/internal/config"
	"deepreport/internal/logging"
)

// NewClient creates the client named by cfg.Provider, wrapped in a
// TimedClient.
func NewClient(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (*TimedClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key not configured for provider %s", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai", "dashscope":
		c := NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		logging.Boot("LLM client: provider=%s model=%s base_url=%s", cfg.Provider, cfg.Model, c.cfg.BaseURL)
		return NewTimedClient(c, cfg.Provider+":"+cfg.Model), nil
	case "gemini":
		c, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		logging.Boot("LLM client: provider=gemini model=%s", c.Model())
		return NewTimedClient(c, "gemini:"+c.Model()), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (valid: %v)", cfg.Provider, config.ValidProviders)
	}
}

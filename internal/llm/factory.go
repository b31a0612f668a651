package llm

import (
	"strings"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "deepseek":
		if config.BaseURL == "" {
			config.BaseURL = deepseekBaseURL
		}
		if config.Model == "" {
			config.Model = "deepseek-chat"
		}
		p, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		p.name = "deepseek"
		return p, nil

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, &ConfigurationError{Reason: "no provider configured"}

	default:
		return nil, &ConfigurationError{
			Provider: config.Provider,
			Reason:   "unsupported provider (supported: openai, deepseek, anthropic, ollama)",
		}
	}
}

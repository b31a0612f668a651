package llm

import (
	"context"

	"github.com/ppiankov/rectify/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate issues a single text-generation request
	Generate(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request contains the input for one generation
type Request struct {
	// Prompt is the user prompt
	Prompt string

	// System is an optional system instruction
	System string

	// Model overrides the configured model (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling randomness
	Temperature float64
}

// Response contains the generated output
type Response struct {
	// Text is the generated text
	Text string

	// Usage tracks token consumption
	Usage model.Usage

	// Model is the model that generated the response
	Model string

	// FinishReason is the provider's stop reason (e.g., "stop", "length")
	FinishReason string
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "deepseek", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/DeepSeek/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, DeepSeek)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens default for response generation
	MaxTokens int

	// Temperature default for response generation
	Temperature float64

	// MaxRetries is the attempt budget of GenerateWithRetry
	MaxRetries int

	// RequestsPerSecond and Burst throttle calls to the endpoint (0 disables)
	RequestsPerSecond float64
	Burst             int

	// CacheTTL enables response caching for low-temperature prompts
	CacheTTL int // seconds

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "deepseek",
		Model:       "deepseek-chat",
		BaseURL:     deepseekBaseURL,
		Timeout:     30,
		MaxTokens:   1000,
		Temperature: 0.1,
		MaxRetries:  3,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:          c.Provider,
		Model:             c.Model,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxTokens:         c.MaxTokens,
		Temperature:       c.Temperature,
		MaxRetries:        c.MaxRetries,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		CacheTTL:          c.CacheTTL,
		HTTPProxy:         c.HTTPProxy,
		HTTPSProxy:        c.HTTPSProxy,
	}
}

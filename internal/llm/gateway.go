package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/cache"
	"github.com/ppiankov/rectify/internal/metrics"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/worker"
)

// Generator is the gateway surface consumed by pipeline stages
type Generator interface {
	GenerateWithRetry(ctx context.Context, prompt string, opts Options) Result
}

// Options tunes one gateway call
type Options struct {
	System      string
	MaxTokens   int
	Temperature float64
	MaxRetries  int // 0 uses the gateway default
}

// Result is the outcome of a gateway call. Failures are reported in-band:
// Err is set and Text carries the diagnostic.
type Result struct {
	Text         string      `json:"text"`
	Usage        model.Usage `json:"usage"`
	Model        string      `json:"model,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Err          bool        `json:"error,omitempty"`
	Attempts     int         `json:"attempts"`
	Cached       bool        `json:"cached,omitempty"`
}

// cacheableTemperature is the highest temperature whose responses are cached
const cacheableTemperature = 0.2

// Gateway wraps a Provider with rate limiting, retry and response caching
type Gateway struct {
	provider   Provider
	config     Config
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
	backoff    Backoff
	sleep      func(ctx context.Context, d time.Duration) error
	limiterKey string
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the gateway logger
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCache enables response caching in c
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithLimiter sets the request limiter
func WithLimiter(l *worker.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// WithBackoff overrides the retry delay curve
func WithBackoff(b Backoff) Option {
	return func(g *Gateway) {
		g.backoff = b
	}
}

// NewGateway builds the provider named in config and wraps it.
// Configuration errors are returned immediately.
func NewGateway(config Config, opts ...Option) (*Gateway, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}

	if config.RequestsPerSecond > 0 {
		opts = append([]Option{WithLimiter(worker.NewLimiter(config.RequestsPerSecond, config.Burst))}, opts...)
	}
	if config.CacheTTL > 0 {
		ttl := time.Duration(config.CacheTTL) * time.Second
		opts = append([]Option{WithCache(cache.Instrumented(cache.NewMemoryCache(ttl, 10*time.Minute), cache.NamespaceLLM), ttl)}, opts...)
	}

	return NewGatewayWithProvider(provider, config, opts...), nil
}

// NewGatewayWithProvider wraps an already constructed provider
func NewGatewayWithProvider(provider Provider, config Config, opts ...Option) *Gateway {
	g := &Gateway{
		provider:   provider,
		config:     config,
		logger:     zap.NewNop(),
		backoff:    DefaultBackoff(),
		sleep:      sleepContext,
		limiterKey: provider.Name() + "|" + config.BaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.config.MaxRetries <= 0 {
		g.config.MaxRetries = 3
	}
	return g
}

// ProviderName returns the wrapped provider's name
func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}

// ModelName returns the configured model
func (g *Gateway) ModelName() string {
	return g.config.Model
}

// Temperature returns the configured default temperature
func (g *Gateway) Temperature() float64 {
	return g.config.Temperature
}

// MaxTokens returns the configured default token limit
func (g *Gateway) MaxTokens() int {
	return g.config.MaxTokens
}

// IsAvailable reports whether the provider endpoint answers
func (g *Gateway) IsAvailable(ctx context.Context) bool {
	return g.provider.IsAvailable(ctx)
}

// Generate issues one attempt without retry
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) Result {
	resp, err := g.attempt(ctx, prompt, opts)
	if err != nil {
		return Result{Err: true, Text: fmt.Sprintf("generation failed: %v", err), Attempts: 1}
	}
	return resultFrom(resp, 1)
}

// GenerateWithRetry retries transient failures up to the attempt budget.
// It never returns an error: on exhaustion the diagnostic is embedded in
// the Result. Configuration and other permanent errors stop immediately.
func (g *Gateway) GenerateWithRetry(ctx context.Context, prompt string, opts Options) Result {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = g.config.MaxRetries
	}

	key, cacheable := g.cacheKey(prompt, opts)
	if cacheable {
		if data, ok := g.cache.Get(key); ok {
			var resp Response
			if err := json.Unmarshal(data, &resp); err == nil {
				result := resultFrom(&resp, 0)
				result.Cached = true
				return result
			}
		}
	}

	var lastErr error
	attempts := 0
	for attempts < maxRetries {
		attempts++
		start := time.Now()
		resp, err := g.attempt(ctx, prompt, opts)
		if err == nil {
			metrics.ObserveGatewayCall(g.provider.Name(), "ok", time.Since(start))
			if cacheable {
				if data, mErr := json.Marshal(resp); mErr == nil {
					_ = g.cache.Set(key, data, g.cacheTTL)
				}
			}
			return resultFrom(resp, attempts)
		}

		lastErr = err
		transient := IsTransient(err)
		outcome := "error"
		if transient {
			outcome = "transient"
		}
		metrics.ObserveGatewayCall(g.provider.Name(), outcome, time.Since(start))

		if !transient || ctx.Err() != nil {
			break
		}
		if attempts >= maxRetries {
			break
		}

		delay := g.backoff.Delay(attempts)
		g.logger.Warn("LLM call failed, retrying",
			zap.String("provider", g.provider.Name()),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err))
		metrics.GatewayRetries.WithLabelValues(g.provider.Name()).Inc()

		if err := g.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("%v (retry aborted: %w)", lastErr, err)
			break
		}
	}

	g.logger.Error("LLM call failed",
		zap.String("provider", g.provider.Name()),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))

	return Result{
		Err:      true,
		Text:     fmt.Sprintf("all retries failed after %d attempt(s): %v", attempts, lastErr),
		Attempts: attempts,
	}
}

// attempt performs one rate-limited provider call
func (g *Gateway) attempt(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.limiterKey); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}

	return g.provider.Generate(ctx, Request{
		Prompt:      prompt,
		System:      opts.System,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	})
}

func (g *Gateway) cacheKey(prompt string, opts Options) (string, bool) {
	if g.cache == nil || opts.Temperature > cacheableTemperature {
		return "", false
	}
	return cache.Key(cache.NamespaceLLM,
		g.provider.Name(),
		g.config.Model,
		fmt.Sprintf("%d", opts.MaxTokens),
		fmt.Sprintf("%.2f", opts.Temperature),
		opts.System,
		prompt,
	), true
}

func resultFrom(resp *Response, attempts int) Result {
	return Result{
		Text:         resp.Text,
		Usage:        resp.Usage,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Attempts:     attempts,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

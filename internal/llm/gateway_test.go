package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rectify/internal/cache"
	"github.com/ppiankov/rectify/internal/model"
)

type scriptedProvider struct {
	mu      sync.Mutex
	errs    []error
	text    string
	calls   int
	request Request
}

func (p *scriptedProvider) Name() string                       { return "scripted" }
func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.request = req
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	return &Response{Text: p.text, Model: "scripted-1", FinishReason: "stop", Usage: model.Usage{TotalTokens: 7}}, nil
}

func newTestGateway(p Provider, retries int, opts ...Option) (*Gateway, *[]time.Duration) {
	g := NewGatewayWithProvider(p, Config{Model: "scripted-1", MaxRetries: retries, MaxTokens: 500}, opts...)
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return g, &slept
}

func TestGateway_GenerateWithRetry_RecoversFromTransient(t *testing.T) {
	p := &scriptedProvider{
		text: "ok",
		errs: []error{
			&TransientError{StatusCode: 503, Err: errors.New("unavailable")},
			&TransientError{StatusCode: 429, Err: errors.New("slow down")},
		},
	}
	g, slept := newTestGateway(p, 3)

	res := g.GenerateWithRetry(context.Background(), "prompt", Options{Temperature: 0.5})

	assert.False(t, res.Err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *slept)
	assert.Equal(t, 500, p.request.MaxTokens, "zero MaxTokens falls back to gateway config")
}

func TestGateway_GenerateWithRetry_Exhausted(t *testing.T) {
	transient := &TransientError{Err: errors.New("connection reset")}
	p := &scriptedProvider{errs: []error{transient, transient, transient, transient}}
	g, _ := newTestGateway(p, 3)

	res := g.GenerateWithRetry(context.Background(), "prompt", Options{})

	assert.True(t, res.Err)
	assert.Contains(t, res.Text, "all retries failed")
	assert.Contains(t, res.Text, "connection reset")
	assert.Equal(t, 3, p.calls)
}

func TestGateway_GenerateWithRetry_ConfigurationErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{&ConfigurationError{Provider: "x", Reason: "missing key"}}}
	g, slept := newTestGateway(p, 5)

	res := g.GenerateWithRetry(context.Background(), "prompt", Options{})

	assert.True(t, res.Err)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *slept)
}

func TestGateway_GenerateWithRetry_PermanentErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("bad request")}}
	g, _ := newTestGateway(p, 3)

	res := g.GenerateWithRetry(context.Background(), "prompt", Options{})

	assert.True(t, res.Err)
	assert.Equal(t, 1, p.calls)
}

func TestGateway_GenerateWithRetry_PerCallBudget(t *testing.T) {
	transient := &TransientError{Err: errors.New("timeout")}
	p := &scriptedProvider{errs: []error{transient, transient, transient, transient, transient}}
	g, _ := newTestGateway(p, 3)

	res := g.GenerateWithRetry(context.Background(), "prompt", Options{MaxRetries: 5})

	assert.True(t, res.Err)
	assert.Equal(t, 5, p.calls)
}

func TestGateway_GenerateWithRetry_ContextCancelled(t *testing.T) {
	transient := &TransientError{Err: errors.New("timeout")}
	p := &scriptedProvider{errs: []error{transient, transient, transient}}
	g, _ := newTestGateway(p, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.GenerateWithRetry(ctx, "prompt", Options{})

	assert.True(t, res.Err)
	assert.Equal(t, 1, p.calls)
}

func TestGateway_Generate_SingleAttempt(t *testing.T) {
	p := &scriptedProvider{errs: []error{&TransientError{Err: errors.New("down")}}}
	g, _ := newTestGateway(p, 3)

	res := g.Generate(context.Background(), "prompt", Options{})

	assert.True(t, res.Err)
	assert.Contains(t, res.Text, "generation failed")
	assert.Equal(t, 1, p.calls)
}

func TestGateway_CachesDeterministicPrompts(t *testing.T) {
	p := &scriptedProvider{text: "cached answer"}
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	g, _ := newTestGateway(p, 3, WithCache(c, time.Minute))

	first := g.GenerateWithRetry(context.Background(), "same prompt", Options{Temperature: 0.1})
	second := g.GenerateWithRetry(context.Background(), "same prompt", Options{Temperature: 0.1})

	require.False(t, first.Err)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.Text)
	assert.Equal(t, 1, p.calls)
}

func TestGateway_DoesNotCacheSampledPrompts(t *testing.T) {
	p := &scriptedProvider{text: "creative"}
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	g, _ := newTestGateway(p, 3, WithCache(c, time.Minute))

	g.GenerateWithRetry(context.Background(), "same prompt", Options{Temperature: 0.7})
	g.GenerateWithRetry(context.Background(), "same prompt", Options{Temperature: 0.7})

	assert.Equal(t, 2, p.calls)
}

func TestNewGateway_ConfigurationError(t *testing.T) {
	_, err := NewGateway(Config{Provider: "mystery"})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewGateway(Config{Provider: "openai"})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{9, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/rectify/internal/cache"
)

// embedBatchSize bounds texts per embeddings request
const embedBatchSize = 64

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder for model at baseURL (empty for OpenAI)
func NewOpenAIEmbedder(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}

		for _, d := range resp.Data {
			idx := start + d.Index
			if d.Index < 0 || idx >= end {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[idx] = d.Embedding
		}
	}

	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}

// CachedEmbedder memoizes another embedder's vectors by model and text
type CachedEmbedder struct {
	inner Embedder
	model string
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner with c
func NewCachedEmbedder(inner Embedder, modelName string, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, model: modelName, cache: c, ttl: ttl}
}

// Embed implements Embedder
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)

	for i, t := range texts {
		if data, ok := e.cache.Get(cache.Key(cache.NamespaceEmbed, e.model, t)); ok {
			out[i] = decodeVector(data)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for j, v := range vectors {
		out[missIdx[j]] = v
		_ = e.cache.Set(cache.Key(cache.NamespaceEmbed, e.model, missTexts[j]), encodeVector(v), e.ttl)
	}
	return out, nil
}

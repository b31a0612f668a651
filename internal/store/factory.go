package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/rectify/internal/cache"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/util"
)

// ErrNoEmbeddingKey is returned when no embedding credential is configured
var ErrNoEmbeddingKey = errors.New("embedding API key is required (vector_db.embedding_api_key or OPENAI_API_KEY)")

// NewEmbedder builds the configured embedder wrapped in a vector cache.
// Keyless endpoints are accepted when an explicit base URL is set (e.g. Ollama).
func NewEmbedder(cfg model.VectorDBConfig, llmCfg model.LLMConfig) (Embedder, error) {
	apiKey := cfg.EmbeddingAPIKey
	if apiKey == "" {
		if cfg.EmbeddingBaseURL == "" {
			return nil, ErrNoEmbeddingKey
		}
		apiKey = "none"
	}

	httpClient := &http.Client{
		Timeout: time.Duration(llmCfg.Timeout) * time.Second,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(llmCfg.HTTPProxy, llmCfg.HTTPSProxy, ""),
		},
	}

	base := NewOpenAIEmbedder(apiKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, httpClient)

	var c cache.Cache
	if cfg.CacheDir != "" {
		layered := cache.NewLayeredCache(time.Hour, cfg.CacheDir, 30*24*time.Hour)
		// Stale vectors only cost disk space, so a failed prune is ignored
		_, _ = layered.Prune()
		c = layered
	} else {
		c = cache.NewMemoryCache(time.Hour, 10*time.Minute)
	}
	return NewCachedEmbedder(base, base.Model(), cache.Instrumented(c, cache.NamespaceEmbed), 0), nil
}

// Open opens the configured backend
func Open(ctx context.Context, cfg model.VectorDBConfig, embedder Embedder) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return NewMemoryStore(cfg.CollectionName, embedder), nil
	case "", "sqlite":
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("vector_db.db_path is required for the sqlite backend")
		}
		return OpenSQLiteStore(ctx, cfg.DBPath, cfg.CollectionName, embedder)
	case "postgres", "pgvector":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector_db.dsn is required for the postgres backend")
		}
		return OpenPostgresStore(ctx, cfg.DSN, cfg.CollectionName, embedder)
	default:
		return nil, fmt.Errorf("unsupported vector_db backend %q (supported: memory, sqlite, postgres)", cfg.Backend)
	}
}

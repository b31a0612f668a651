// Package cache stores model responses and embedding vectors so repeated
// prompts and re-ingested documents do not hit the provider again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/rectify/internal/metrics"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Namespaces of cached values
const (
	NamespaceLLM   = "llm"   // gateway responses to deterministic prompts
	NamespaceEmbed = "embed" // embedding vectors keyed by model and text
)

const keyPrefix = "rectify:v1:"

// Key derives a stable cache key from a namespace and the parts that
// identify a cached value (prompt, model, document text)
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		// Separator keeps ("ab","c") distinct from ("a","bc")
		h.Write([]byte{0})
	}
	return keyPrefix + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Instrumented counts hits and misses of c under the given name in the
// rectify_cache_lookups_total metric
func Instrumented(c Cache, name string) Cache {
	return &instrumented{Cache: c, name: name}
}

type instrumented struct {
	Cache
	name string
}

func (c *instrumented) Get(key string) ([]byte, bool) {
	v, ok := c.Cache.Get(key)
	metrics.ObserveCacheLookup(c.name, ok)
	return v, ok
}

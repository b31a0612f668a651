// Package storetest provides a deterministic embedder for tests
package storetest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Dim is the vector width produced by KeywordEmbedder
const Dim = 64

// KeywordEmbedder hashes lowercase words into a fixed-width bag-of-words
// vector. Texts sharing words score a positive cosine similarity.
type KeywordEmbedder struct {
	mu    sync.Mutex
	calls int
	Err   error
}

// Embed implements store.Embedder
func (e *KeywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Calls returns the number of Embed invocations
func (e *KeywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// ErrUnavailable simulates an embedding service outage
var ErrUnavailable = errors.New("embedding service unavailable")

// Vector returns the normalized bag-of-words vector of text
func Vector(text string) []float32 {
	v := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

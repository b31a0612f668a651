// Package store embeds knowledge-base documents and answers
// nearest-neighbour queries with a similarity score per hit.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ppiankov/rectify/internal/model"
)

// ErrRetrieval marks similarity-store failures. Callers treat it as fatal
// for the run: there is no empty-evidence fallback.
var ErrRetrieval = errors.New("retrieval failed")

// Metadata keys understood by every backend
const (
	MetaID        = "id"
	MetaSource    = "source"
	MetaAuthority = "authority"
)

// Store is the embedding similarity store
type Store interface {
	// Add embeds and stores documents. metadata is aligned with documents
	// and may be shorter. Returns the stable id of every document.
	Add(ctx context.Context, documents []string, metadata []map[string]any) ([]string, error)

	// Search returns at most k snippets with similarity >= threshold, best first
	Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error)

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Backend names the implementation ("memory", "sqlite", "postgres")
	Backend() string

	Close() error
}

// Embedder turns texts into vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// document is one stored entry
type document struct {
	ID        string
	Text      string
	Source    string
	Authority model.AuthorityTier
	Metadata  map[string]any
	Vector    []float32
}

// idNamespace seeds deterministic document ids
var idNamespace = uuid.MustParse("6f1d3c2e-8a4b-5c7d-9e0f-1a2b3c4d5e6f")

// DocumentID returns the stable id of text within collection
func DocumentID(collection, text string) string {
	return uuid.NewSHA1(idNamespace, []byte(collection+"\x00"+text)).String()
}

// prepare embeds documents and resolves ids, sources and authority tiers
func prepare(ctx context.Context, embedder Embedder, collection string, documents []string, metadata []map[string]any) ([]document, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	vectors, err := embedder.Embed(ctx, documents)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(documents) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(documents))
	}

	docs := make([]document, len(documents))
	for i, text := range documents {
		var meta map[string]any
		if i < len(metadata) && metadata[i] != nil {
			meta = metadata[i]
		} else {
			meta = map[string]any{}
		}

		id, _ := meta[MetaID].(string)
		if id == "" {
			id = DocumentID(collection, text)
		}
		source, _ := meta[MetaSource].(string)
		if source == "" {
			source = "unknown"
		}
		tier, _ := meta[MetaAuthority].(string)

		docs[i] = document{
			ID:        id,
			Text:      text,
			Source:    source,
			Authority: model.ParseAuthorityTier(tier),
			Metadata:  meta,
			Vector:    vectors[i],
		}
	}
	return docs, nil
}

// embedQuery embeds a single search query
func embedQuery(ctx context.Context, embedder Embedder, query string) ([]float32, error) {
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}
	return vectors[0], nil
}

type scored struct {
	doc        document
	similarity float64
}

// rank filters by threshold, keeps the k best and assigns 1-based ranks
func rank(candidates []scored, k int, threshold float64) []model.EvidenceSnippet {
	if k <= 0 {
		return []model.EvidenceSnippet{}
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if c.similarity >= threshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].similarity > kept[j].similarity
	})

	if len(kept) > k {
		kept = kept[:k]
	}

	snippets := make([]model.EvidenceSnippet, 0, len(kept))
	for i, c := range kept {
		snippets = append(snippets, model.EvidenceSnippet{
			Text:       c.doc.Text,
			Source:     c.doc.Source,
			Similarity: c.similarity,
			Rank:       i + 1,
			Authority:  c.doc.Authority,
		})
	}
	return snippets
}

func retrievalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRetrieval, op, err)
}

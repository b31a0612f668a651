package store

import (
	"context"
	"sync"

	"github.com/ppiankov/rectify/internal/model"
)

// MemoryStore keeps documents in process memory and searches by brute force
type MemoryStore struct {
	mu         sync.RWMutex
	collection string
	embedder   Embedder
	order      []string
	docs       map[string]document
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(collection string, embedder Embedder) *MemoryStore {
	return &MemoryStore{
		collection: collection,
		embedder:   embedder,
		docs:       make(map[string]document),
	}
}

// Add implements Store
func (s *MemoryStore) Add(ctx context.Context, documents []string, metadata []map[string]any) ([]string, error) {
	docs, err := prepare(ctx, s.embedder, s.collection, documents, metadata)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(docs))
	for i, d := range docs {
		if _, exists := s.docs[d.ID]; !exists {
			s.order = append(s.order, d.ID)
		}
		s.docs[d.ID] = d
		ids[i] = d.ID
	}
	return ids, nil
}

// Search implements Store
func (s *MemoryStore) Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error) {
	s.mu.RLock()
	empty := len(s.docs) == 0
	s.mu.RUnlock()
	if empty {
		return []model.EvidenceSnippet{}, nil
	}

	vec, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, retrievalError("embed query", err)
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		d := s.docs[id]
		candidates = append(candidates, scored{doc: d, similarity: Similarity(vec, d.Vector)})
	}
	s.mu.RUnlock()

	return rank(candidates, k, threshold), nil
}

// Count implements Store
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Backend implements Store
func (s *MemoryStore) Backend() string { return "memory" }

// Close implements Store
func (s *MemoryStore) Close() error { return nil }

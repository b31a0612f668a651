// Package retrieve gathers per-claim evidence from the similarity store
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rectify/internal/metrics"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/store"
)

// Searcher answers similarity queries
type Searcher interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error)
}

// QueryBuilder produces the intent-specific reformulation of a query
type QueryBuilder interface {
	RetrievalQuery(ctx context.Context, query string, intent model.Intent) string
}

// Retriever builds composite retrieval queries and collects evidence per claim
type Retriever struct {
	searcher  Searcher
	builder   QueryBuilder
	k         int
	threshold float64
	workers   int
	logger    *zap.Logger
}

// Option configures a Retriever
type Option func(*Retriever)

// WithWorkers sets how many claims are searched concurrently
func WithWorkers(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a retriever using cfg's k and threshold
func NewRetriever(searcher Searcher, builder QueryBuilder, cfg model.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{
		searcher:  searcher,
		builder:   builder,
		k:         cfg.MaxRetrievedDocs,
		threshold: cfg.SimilarityThreshold,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CompositeQuery joins the query, its reformulation and the claim text
func CompositeQuery(query, reformulation, claim string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{query, reformulation, claim} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Retrieve returns the evidence map keyed by claim id. Any store failure
// aborts retrieval and is returned wrapped in store.ErrRetrieval.
func (r *Retriever) Retrieve(ctx context.Context, claims []model.Claim, query string, intent model.Intent) (model.EvidenceMap, error) {
	evidence := make(model.EvidenceMap, len(claims))
	if len(claims) == 0 {
		return evidence, nil
	}

	reformulation := r.builder.RetrievalQuery(ctx, query, intent)

	if r.workers <= 1 || len(claims) == 1 {
		for _, claim := range claims {
			entry, err := r.retrieveOne(ctx, claim, query, reformulation)
			if err != nil {
				return nil, err
			}
			evidence[claim.ID] = entry
		}
		return evidence, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, claim := range claims {
		g.Go(func() error {
			entry, err := r.retrieveOne(gctx, claim, query, reformulation)
			if err != nil {
				return err
			}
			mu.Lock()
			evidence[claim.ID] = entry
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evidence, nil
}

func (r *Retriever) retrieveOne(ctx context.Context, claim model.Claim, query, reformulation string) (model.EvidenceEntry, error) {
	composite := CompositeQuery(query, reformulation, claim.Text)

	snippets, err := r.searcher.Search(ctx, composite, r.k, r.threshold)
	if err != nil {
		if !errors.Is(err, store.ErrRetrieval) {
			err = fmt.Errorf("%w: claim %s: %w", store.ErrRetrieval, claim.ID, err)
		}
		return model.EvidenceEntry{}, err
	}
	if snippets == nil {
		snippets = []model.EvidenceSnippet{}
	}

	metrics.EvidenceHits.Observe(float64(len(snippets)))
	r.logger.Debug("retrieved evidence",
		zap.String("claim_id", claim.ID),
		zap.Int("snippets", len(snippets)))

	return model.EvidenceEntry{
		ClaimText:      claim.Text,
		RetrievalQuery: composite,
		Evidence:       snippets,
	}, nil
}

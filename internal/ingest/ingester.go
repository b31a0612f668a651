// Package ingest loads documents into the knowledge base: local files,
// fetched web pages and the built-in samples.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/authority"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/store"
	"github.com/ppiankov/rectify/internal/worker"
)

// addBatchSize bounds the number of chunks embedded per store call
const addBatchSize = 64

// Stats summarises one ingestion
type Stats struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	IDs       []string `json:"ids,omitempty"`
	Skipped   []string `json:"skipped,omitempty"` // "<source>: <reason>"
}

// Ingester chunks documents and adds them to a store
type Ingester struct {
	store        store.Store
	classifier   *authority.Classifier
	fetcher      *Fetcher
	chunkSize    int
	chunkOverlap int
	workers      int
	logger       *zap.Logger
}

// Option configures an Ingester
type Option func(*Ingester)

// WithClassifier tags URL sources with their authority tier
func WithClassifier(c *authority.Classifier) Option {
	return func(i *Ingester) { i.classifier = c }
}

// WithFetcher enables URL ingestion
func WithFetcher(f *Fetcher) Option {
	return func(i *Ingester) { i.fetcher = f }
}

// WithWorkers sets the number of concurrent URL fetches
func WithWorkers(n int) Option {
	return func(i *Ingester) { i.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingester) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an Ingester chunking by cfg.ChunkSize and cfg.ChunkOverlap
func New(st store.Store, cfg model.RetrievalConfig, opts ...Option) *Ingester {
	i := &Ingester{
		store:        st,
		classifier:   authority.NewClassifier(nil),
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		workers:      4,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Add chunks docs and stores every chunk. Chunk metadata carries the
// document metadata plus chunk position and authority tier.
func (i *Ingester) Add(ctx context.Context, docs []Document) (Stats, error) {
	var stats Stats
	var texts []string
	var metas []map[string]any

	for _, doc := range docs {
		chunks := Chunk(doc.Text, i.chunkSize, i.chunkOverlap)
		if len(chunks) == 0 {
			continue
		}
		stats.Documents++

		tier := i.classifier.ClassifySource(doc.Source())
		for n, chunk := range chunks {
			meta := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			if len(chunks) > 1 {
				meta["chunk"] = n
				meta["chunks"] = len(chunks)
			}
			if tier != model.TierUnknown {
				meta[store.MetaAuthority] = tier.String()
			}
			texts = append(texts, chunk)
			metas = append(metas, meta)
		}
	}

	for start := 0; start < len(texts); start += addBatchSize {
		end := min(start+addBatchSize, len(texts))
		ids, err := i.store.Add(ctx, texts[start:end], metas[start:end])
		if err != nil {
			return stats, fmt.Errorf("add documents: %w", err)
		}
		stats.IDs = append(stats.IDs, ids...)
		stats.Chunks += len(ids)
	}

	i.logger.Info("documents ingested",
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks))
	return stats, nil
}

// AddTexts stores raw texts with optional aligned metadata
func (i *Ingester) AddTexts(ctx context.Context, texts []string, metadata []map[string]any) (Stats, error) {
	docs := make([]Document, 0, len(texts))
	for n, text := range texts {
		meta := map[string]any{}
		if n < len(metadata) && metadata[n] != nil {
			meta = metadata[n]
		}
		docs = append(docs, Document{Text: text, Metadata: meta})
	}
	return i.Add(ctx, docs)
}

// IngestDir loads and stores every supported file below dir
func (i *Ingester) IngestDir(ctx context.Context, dir string) (Stats, error) {
	docs, err := LoadDir(dir)
	if err != nil {
		return Stats{}, err
	}
	return i.Add(ctx, docs)
}

// Seed stores the built-in sample documents
func (i *Ingester) Seed(ctx context.Context) (Stats, error) {
	return i.Add(ctx, Samples)
}

// IngestURLs fetches pages concurrently and stores their readable text.
// Pages that fail to fetch are reported in Stats.Skipped.
func (i *Ingester) IngestURLs(ctx context.Context, urls []string) (Stats, error) {
	if i.fetcher == nil {
		return Stats{}, fmt.Errorf("URL ingestion requires a fetcher")
	}

	pool := worker.NewPoolWithContext(ctx, i.workers)
	pool.Start()
	for _, u := range urls {
		pool.Submit(&fetchJob{url: u, fetcher: i.fetcher})
	}
	results := pool.Wait()

	var docs []Document
	var skipped []string
	for _, r := range results {
		fr := r.(*fetchResult)
		if err := fr.GetError(); err != nil {
			i.logger.Warn("skipping source", zap.String("url", fr.url), zap.Error(err))
			skipped = append(skipped, fmt.Sprintf("%s: %v", fr.url, err))
			continue
		}
		docs = append(docs, nonEmpty(fr.doc)...)
	}

	stats, err := i.Add(ctx, docs)
	stats.Skipped = append(stats.Skipped, skipped...)
	return stats, err
}

// fetchJob downloads one page as a worker.Job
type fetchJob struct {
	url     string
	fetcher *Fetcher
}

type fetchResult struct {
	url string
	doc Document
	err error
}

func (r *fetchResult) GetError() error { return r.err }

func (j *fetchJob) Execute(ctx context.Context) worker.Result {
	res, err := j.fetcher.FetchWithRetry(ctx, j.url)
	if err != nil {
		return &fetchResult{url: j.url, err: err}
	}

	doc, err := pageDocument(res)
	return &fetchResult{url: j.url, doc: doc, err: err}
}

// pageDocument turns a fetched page into a document tagged with its final URL
func pageDocument(res *FetchResult) (Document, error) {
	meta := map[string]any{
		store.MetaSource: res.FinalURL,
		"type":           "web",
	}

	if !res.IsHTML() {
		meta["title"] = res.Subject
		return Document{Text: res.Body, Metadata: meta}, nil
	}

	page, err := ParseHTML(res.Body, res.FinalURL)
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = res.Subject
	}
	meta["title"] = title
	meta["links"] = len(page.Links)
	return Document{Text: page.Text, Metadata: meta}, nil
}

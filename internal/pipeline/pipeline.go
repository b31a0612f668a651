// Package pipeline sequences the verification and correction stages of a run
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/correct"
	"github.com/ppiankov/rectify/internal/detect"
	"github.com/ppiankov/rectify/internal/extract"
	"github.com/ppiankov/rectify/internal/intent"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/metrics"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/retrieve"
	"github.com/ppiankov/rectify/internal/score"
	"github.com/ppiankov/rectify/internal/store"
	"github.com/ppiankov/rectify/internal/verify"
	"github.com/ppiankov/rectify/internal/worker"
)

// Pipeline runs queries through the fixed stage sequence. It holds no
// per-run state and is safe for concurrent use.
type Pipeline struct {
	deps      Deps
	config    *model.Config
	logger    *zap.Logger
	startedAt time.Time
	now       func() time.Time
}

// Option configures New
type Option func(*options)

type options struct {
	logger    *zap.Logger
	store     store.Store
	generator llm.Generator
}

// WithLogger sets the logger shared by every stage
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore uses s instead of opening the configured store
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithGenerator uses gen instead of building a gateway from the config
func WithGenerator(gen llm.Generator) Option {
	return func(o *options) { o.generator = gen }
}

// New builds every stage from cfg. Configuration errors (unknown provider,
// missing credentials, unreachable store) are returned here, never per run.
func New(ctx context.Context, cfg *model.Config, opts ...Option) (*Pipeline, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gen := o.generator
	if gen == nil {
		gw, err := llm.NewGateway(llm.ConfigFromModel(cfg.LLM), llm.WithLogger(logger.Named("llm")))
		if err != nil {
			return nil, fmt.Errorf("create gateway: %w", err)
		}
		gen = gw
	}

	st := o.store
	if st == nil {
		embedder, err := store.NewEmbedder(cfg.VectorDB, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		st, err = store.Open(ctx, cfg.VectorDB, embedder)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	classifier := intent.NewClassifier(gen, cfg.Intents(), model.NormalizeIntent(cfg.Intent.DefaultIntent), logger.Named("intent"))

	deps := Deps{
		Generator:  gen,
		Store:      st,
		Classifier: classifier,
		Extractor:  extract.NewClaimExtractor(gen, logger.Named("extract")),
		Retriever: retrieve.NewRetriever(st, classifier, cfg.Retrieval,
			retrieve.WithWorkers(cfg.Pipeline.ClaimWorkers),
			retrieve.WithLogger(logger.Named("retrieve"))),
		Verifier: verify.NewVerifier(gen,
			verify.WithWorkers(cfg.Pipeline.ClaimWorkers),
			verify.WithMaxAttempts(cfg.Verification.MaxVerificationAttempts),
			verify.WithLogger(logger.Named("verify"))),
		Corrector: correct.NewCorrector(gen, logger.Named("correct")),
		Detector:  detect.NewDetector(gen, logger.Named("detect")),
		Scorer:    score.NewScorer(),
		Logger:    logger,
	}

	return NewWithDeps(deps, cfg), nil
}

// NewWithDeps creates a pipeline from prebuilt stages. A nil cfg uses
// model.DefaultConfig.
func NewWithDeps(deps Deps, cfg *model.Config) *Pipeline {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Scorer == nil {
		deps.Scorer = score.NewScorer()
	}
	return &Pipeline{
		deps:      deps,
		config:    cfg,
		logger:    deps.Logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Store returns the similarity store, nil if none was configured
func (p *Pipeline) Store() store.Store {
	return p.deps.Store
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() *model.Config {
	return p.config
}

// Close releases the store
func (p *Pipeline) Close() error {
	if p.deps.Store == nil {
		return nil
	}
	return p.deps.Store.Close()
}

// Run generates an answer to query and verifies it. The run never panics
// and never returns nil: failures are reported through Success,
// FailedStage and Error.
func (p *Pipeline) Run(ctx context.Context, query, queryContext string) *model.PipelineRun {
	return p.run(ctx, query, queryContext, "", false)
}

// RunWithAnswer verifies a caller-supplied answer; initial answer
// generation is recorded as skipped.
func (p *Pipeline) RunWithAnswer(ctx context.Context, query, answer, queryContext string) *model.PipelineRun {
	return p.run(ctx, query, queryContext, answer, true)
}

// Batch runs queries in input order. batch.concurrency > 1 runs them on
// a worker pool; the output order still matches the input.
func (p *Pipeline) Batch(ctx context.Context, queries []string, queryContext string) []*model.PipelineRun {
	return p.NewBatchProcessor().ProcessQueries(ctx, queries, queryContext)
}

// BatchRequests runs requests in input order; requests carrying an
// answer skip initial answer generation
func (p *Pipeline) BatchRequests(ctx context.Context, reqs []worker.Request) []*model.PipelineRun {
	return p.NewBatchProcessor().ProcessRequests(ctx, reqs)
}

// NewBatchProcessor returns a batch processor bound to this pipeline
func (p *Pipeline) NewBatchProcessor() *worker.BatchProcessor {
	return worker.NewBatchProcessor(p, p.config.Batch.Concurrency)
}

type stage struct {
	name string
	fn   func(ctx context.Context, run *model.PipelineRun) (model.StageStatus, map[string]interface{}, error)
}

func (p *Pipeline) run(ctx context.Context, query, queryContext, answer string, supplied bool) *model.PipelineRun {
	run := &model.PipelineRun{
		ID:            uuid.NewString(),
		Query:         query,
		Context:       queryContext,
		InitialAnswer: answer,
		Stages:        make([]model.StageRecord, 0, len(model.StageOrder)),
		StartedAt:     p.now(),
	}
	logger := p.logger.With(zap.String("run_id", run.ID))
	logger.Info("run started", zap.String("query", query), zap.Bool("answer_supplied", supplied))

	initial := p.generateInitialAnswer
	if supplied {
		initial = skipInitialAnswer
	}

	stages := []stage{
		{model.StageInitialAnswer, initial},
		{model.StageClassify, p.classifyIntent},
		{model.StageExtract, p.extractClaims},
		{model.StageRetrieve, p.retrieveEvidence},
		{model.StageVerify, p.verifyClaims},
		{model.StageCorrect, p.correctAnswer},
		{model.StageDetect, p.detectHallucination},
		{model.StageAssemble, p.assembleReport},
	}

	for _, s := range stages {
		if err := p.runStage(ctx, logger, run, s); err != nil {
			run.Success = false
			run.FailedStage = s.name
			run.Error = err.Error()
			run.FinishedAt = p.now()
			metrics.ObserveRun(false)
			logger.Error("run failed", zap.String("stage", s.name), zap.Error(err), zap.Duration("duration", run.Duration()))
			return run
		}
	}

	run.Success = true
	run.FinishedAt = p.now()
	metrics.ObserveRun(true)
	logger.Info("run finished",
		zap.Int("claims", len(run.Claims)),
		zap.Float64("support_ratio", model.SupportRatio(run.Verifications)),
		zap.Duration("duration", run.Duration()))
	return run
}

// runStage executes one stage inside an error boundary. The stage record
// is appended whatever the outcome; panics become a StageError.
func (p *Pipeline) runStage(ctx context.Context, logger *zap.Logger, run *model.PipelineRun, s stage) (err error) {
	start := time.Now()
	status := model.StageFailed
	var meta map[string]interface{}

	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: s.name, Err: &panicError{value: r}}
			status = model.StageFailed
		}

		d := time.Since(start)
		rec := model.StageRecord{Name: s.name, Status: status, Duration: d, Metadata: meta}
		if err != nil {
			rec.Error = err.Error()
		}
		run.Stages = append(run.Stages, rec)
		metrics.ObserveStage(s.name, string(status), d)
		logger.Debug("stage finished",
			zap.String("stage", s.name),
			zap.String("status", string(status)),
			zap.Duration("duration", d))
	}()

	logger.Debug("stage started", zap.String("stage", s.name))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &StageError{Stage: s.name, Err: ctxErr}
	}

	st, m, stageErr := s.fn(ctx, run)
	meta = m
	if stageErr != nil {
		var se *StageError
		if !errors.As(stageErr, &se) {
			stageErr = &StageError{Stage: s.name, Err: stageErr}
		}
		return stageErr
	}
	status = st
	return nil
}

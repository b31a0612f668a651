package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/rectify/internal/model"
)

// Runner executes one correction pipeline run
type Runner interface {
	Run(ctx context.Context, query, context string) *model.PipelineRun
}

// AnswerRunner checks a caller-supplied answer instead of generating one
type AnswerRunner interface {
	RunWithAnswer(ctx context.Context, query, answer, context string) *model.PipelineRun
}

// Request is one query of a batch. Answer is optional.
type Request struct {
	Query   string `json:"query"`
	Answer  string `json:"original_answer,omitempty"`
	Context string `json:"context,omitempty"`
}

// QueryJob runs the pipeline for one query
type QueryJob struct {
	Query   string
	Answer  string
	Context string
	Runner  Runner
}

// Execute executes the query job
func (j *QueryJob) Execute(ctx context.Context) Result {
	return &QueryResult{Query: j.Query, Run: runRequest(ctx, j.Runner, Request{Query: j.Query, Answer: j.Answer, Context: j.Context})}
}

// runRequest uses RunWithAnswer when an answer is supplied and the runner supports it
func runRequest(ctx context.Context, runner Runner, req Request) *model.PipelineRun {
	if req.Answer != "" {
		if ar, ok := runner.(AnswerRunner); ok {
			return ar.RunWithAnswer(ctx, req.Query, req.Answer, req.Context)
		}
	}
	return runner.Run(ctx, req.Query, req.Context)
}

// QueryResult wraps a finished run
type QueryResult struct {
	Query string
	Run   *model.PipelineRun
}

// GetError reports a failed run as an error
func (r *QueryResult) GetError() error {
	if r.Run == nil {
		return errors.New("run produced no result")
	}
	if !r.Run.Success {
		return fmt.Errorf("stage %s: %s", r.Run.FailedStage, r.Run.Error)
	}
	return nil
}

// BatchProcessor runs many independent queries, sequentially by default
type BatchProcessor struct {
	runner      Runner
	concurrency int
	progress    func(done, total int, run *model.PipelineRun)
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// OnProgress registers a callback invoked after each sequential run
func (b *BatchProcessor) OnProgress(fn func(done, total int, run *model.PipelineRun)) {
	b.progress = fn
}

// ProcessQueries returns one run per query, in input order
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string, queryContext string) []*model.PipelineRun {
	reqs := make([]Request, len(queries))
	for i, q := range queries {
		reqs[i] = Request{Query: q, Context: queryContext}
	}
	return b.ProcessRequests(ctx, reqs)
}

// ProcessRequests returns one run per request, in input order
func (b *BatchProcessor) ProcessRequests(ctx context.Context, reqs []Request) []*model.PipelineRun {
	if len(reqs) == 0 {
		return []*model.PipelineRun{}
	}

	if b.concurrency == 1 {
		runs := make([]*model.PipelineRun, 0, len(reqs))
		for i, req := range reqs {
			run := runRequest(ctx, b.runner, req)
			runs = append(runs, run)
			if b.progress != nil {
				b.progress(i+1, len(reqs), run)
			}
		}
		return runs
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for _, req := range reqs {
		pool.Submit(&QueryJob{Query: req.Query, Answer: req.Answer, Context: req.Context, Runner: b.runner})
	}

	results := pool.Wait()

	runs := make([]*model.PipelineRun, 0, len(results))
	for _, result := range results {
		runs = append(runs, result.(*QueryResult).Run)
	}
	return runs
}

// ProcessFile reads queries from a file and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath, queryContext string) ([]*model.PipelineRun, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries found in %s", filePath)
	}

	return b.ProcessQueries(ctx, queries, queryContext), nil
}

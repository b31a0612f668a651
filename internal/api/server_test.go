package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rectify/internal/ingest"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/store"
	"github.com/ppiankov/rectify/internal/store/storetest"
	"github.com/ppiankov/rectify/internal/worker"
)

// stubPipeline records calls and fails queries containing "fail"
type stubPipeline struct {
	mu      sync.Mutex
	calls   []worker.Request
	status  string
	batches int
}

func (s *stubPipeline) result(req worker.Request) *model.PipelineRun {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	run := &model.PipelineRun{
		ID:            "run-" + req.Query,
		Query:         req.Query,
		Context:       req.Context,
		InitialAnswer: req.Answer,
		Success:       true,
		StartedAt:     time.Unix(0, 0),
		FinishedAt:    time.Unix(1, 0),
	}
	if strings.Contains(req.Query, "fail") {
		run.Success = false
		run.FailedStage = model.StageRetrieve
		run.Error = "retrieval failed: store down"
	}
	return run
}

func (s *stubPipeline) Run(ctx context.Context, query, queryContext string) *model.PipelineRun {
	return s.result(worker.Request{Query: query, Context: queryContext})
}

func (s *stubPipeline) RunWithAnswer(ctx context.Context, query, answer, queryContext string) *model.PipelineRun {
	return s.result(worker.Request{Query: query, Answer: answer, Context: queryContext})
}

func (s *stubPipeline) BatchRequests(ctx context.Context, reqs []worker.Request) []*model.PipelineRun {
	s.batches++
	runs := make([]*model.PipelineRun, len(reqs))
	for i, r := range reqs {
		runs[i] = s.result(r)
	}
	return runs
}

func (s *stubPipeline) Status(ctx context.Context) pipeline.Status {
	status := s.status
	if status == "" {
		status = "running"
	}
	return pipeline.Status{Status: status, ConfigLoaded: true}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *stubPipeline, *store.MemoryStore) {
	t.Helper()
	p := &stubPipeline{}
	st := store.NewMemoryStore("test", &storetest.KeywordEmbedder{})
	kb := ingest.New(st, model.RetrievalConfig{ChunkSize: 1000, ChunkOverlap: 100})
	return NewServer(p, kb, opts...), p, st
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, p, _ := newTestServer(t, WithVersion("1.2.3"))

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)

	p.status = "degraded"
	rec = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode[HealthResponse](t, rec).Status)
}

func TestRoot(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /correct/batch")
}

func TestSystemStatus(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode[pipeline.Status](t, rec).Status)
}

func TestCorrect(t *testing.T) {
	s, p, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/correct", `{"query": "who created Python?", "context": "history"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CorrectResponse](t, rec)
	assert.Equal(t, "completed", resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "who created Python?", resp.Result.Query)
	assert.Equal(t, []worker.Request{{Query: "who created Python?", Context: "history"}}, p.calls)
}

func TestCorrect_WithOriginalAnswer(t *testing.T) {
	s, p, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/correct", `{"query": "q", "original_answer": "a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", p.calls[0].Answer)
}

func TestCorrect_FailedRun(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/correct", `{"query": "please fail"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CorrectResponse](t, rec)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "stage retrieve_evidence: retrieval failed: store down", resp.Error)
}

func TestCorrect_BadRequests(t *testing.T) {
	s, p, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"query":`, "invalid request body"},
		{"missing query", `{"context": "x"}`, "query is required"},
		{"blank query", `{"query": "   "}`, "query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/correct", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
	assert.Empty(t, p.calls)
}

func TestCorrect_RequiresJSONContentType(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/correct", strings.NewReader(`{"query": "q"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCorrectBatch(t *testing.T) {
	s, p, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/correct/batch", `{
		"context": "default ctx",
		"requests": [
			{"query": "one"},
			{"query": "two fail"},
			{"query": "three", "original_answer": "supplied", "context": "own ctx"}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BatchResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.BatchID, "batch_"))
	assert.Equal(t, 3, resp.TotalRequests)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	for i, item := range resp.Results {
		assert.Equal(t, i, item.Index)
	}
	assert.False(t, resp.Results[1].Success)
	assert.Contains(t, resp.Results[1].Error, "retrieve_evidence")
	assert.Equal(t, 3, resp.Summary.TotalQueries)

	assert.Equal(t, 1, p.batches)
	assert.Equal(t, "default ctx", p.calls[0].Context)
	assert.Equal(t, worker.Request{Query: "three", Answer: "supplied", Context: "own ctx"}, p.calls[2])
}

func TestCorrectBatch_Limits(t *testing.T) {
	s, p, _ := newTestServer(t, WithMaxBatch(2))

	rec := do(t, s, http.MethodPost, "/correct/batch", `{"requests": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/correct/batch", `{"requests": [{"query": "a"}, {"query": "b"}, {"query": "c"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at most 2 requests")

	rec = do(t, s, http.MethodPost, "/correct/batch", `{"requests": [{"query": "a"}, {"query": ""}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "requests[1]")

	assert.Zero(t, p.batches)
}

func TestKnowledgeAdd(t *testing.T) {
	s, _, st := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/knowledge/add", `{
		"documents": ["Python was created by Guido van Rossum.", "Java was created by James Gosling."],
		"metadatas": [{"source": "https://www.python.org/about/"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "added 2 documents")

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := st.Search(context.Background(), "Guido van Rossum Python", 1, 0.1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.TierPrimary, hits[0].Authority)
}

func TestKnowledgeAdd_BadRequests(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/knowledge/add", `{"documents": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/knowledge/add", `{"documents": ["a"], "metadatas": [{}, {}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeAdd_StoreFailure(t *testing.T) {
	st := store.NewMemoryStore("test", &storetest.KeywordEmbedder{Err: storetest.ErrUnavailable})
	s := NewServer(&stubPipeline{}, ingest.New(st, model.RetrievalConfig{ChunkSize: 1000}))

	rec := do(t, s, http.MethodPost, "/knowledge/add", `{"documents": ["a document"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "embedding service unavailable")
}

func TestKnowledgeAdd_ReadOnly(t *testing.T) {
	s := NewServer(&stubPipeline{}, nil)
	rec := do(t, s, http.MethodPost, "/knowledge/add", `{"documents": ["a"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/correct", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRespondJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]float64{"confidence": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "encode response")
}

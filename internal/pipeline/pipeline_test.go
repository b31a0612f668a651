package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rectify/internal/llm/llmtest"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/store"
	"github.com/ppiankov/rectify/internal/store/storetest"
	"github.com/ppiankov/rectify/internal/worker"
)

const (
	pythonQuery  = "what is Python?"
	pythonAnswer = "Python is a compiled language. It was created by the author of Java in 2000."

	claimLines = "[CLAIM_1]: Python is a compiled language\n" +
		"[CLAIM_2]: Python was created by the author of Java\n" +
		"[CLAIM_3]: Python was created in 2000"

	contradictedJSON = `{"verdict": "CONTRADICTED", "confidence": 0.9, "supporting_evidence": [], ` +
		`"contradicting_evidence": [{"text": "Python is interpreted", "source": "python_docs", "contradiction_score": 0.9}], ` +
		`"reasoning": "evidence disagrees", "intent_specific_analysis": "factual error"}`

	correctedAnswer = "Python is an interpreted language created by Guido van Rossum and first released in 1991."

	hallucinationJSON = `{"has_hallucination": true, "hallucination_type": "FACTUAL", "confidence": 0.9, ` +
		`"affected_sections": [], "comparison_analysis": {}, "recommendations": []}`
)

var pythonDocs = []string{
	"Python is an interpreted, high-level programming language.",
	"Python was created by Guido van Rossum.",
	"Python was first released in 1991.",
}

// scriptedFake answers every prompt of a run
func scriptedFake() *llmtest.Fake {
	return llmtest.New().
		On("hallucination detection expert", hallucinationJSON).
		On("Verification summary", correctedAnswer).
		On("Claim to verify", contradictedJSON).
		On("atomic factual assertions", claimLines).
		On("query intent classifier", "factual").
		On("Answer the following question directly", pythonAnswer)
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Retrieval.SimilarityThreshold = 0.05
	cfg.Retrieval.MaxRetrievedDocs = 3
	return cfg
}

func newTestPipeline(t *testing.T, fake *llmtest.Fake, cfg *model.Config) *Pipeline {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore("kb", &storetest.KeywordEmbedder{})
	_, err := st.Add(ctx, pythonDocs, []map[string]any{{"source": "python_docs"}, {"source": "history"}, {"source": "history"}})
	require.NoError(t, err)

	p, err := New(ctx, cfg, WithGenerator(fake), WithStore(st))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func stageNames(run *model.PipelineRun) []string {
	names := make([]string, len(run.Stages))
	for i, s := range run.Stages {
		names[i] = s.Name
	}
	return names
}

func TestRun_PythonScenario(t *testing.T) {
	fake := scriptedFake()
	p := newTestPipeline(t, fake, testConfig())

	run := p.Run(context.Background(), pythonQuery, "")

	require.True(t, run.Success, "run failed at %s: %s", run.FailedStage, run.Error)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.IntentFactual, run.Intent)
	assert.Equal(t, pythonAnswer, run.InitialAnswer)
	assert.Equal(t, model.StageOrder, stageNames(run))
	for _, s := range run.Stages {
		assert.Equal(t, model.StageOK, s.Status, s.Name)
	}

	require.Len(t, run.Claims, 3)
	require.Len(t, run.Verifications, 3)
	for _, v := range run.Verifications {
		assert.Equal(t, model.VerdictContradicted, v.Verdict)
	}

	assert.NotEqual(t, run.InitialAnswer, run.CorrectedAnswer())
	assert.Equal(t, 0.0, model.SupportRatio(run.Verifications))
	assert.Equal(t, 3, run.Correction.ContradictedClaims)
	assert.Equal(t, 0, run.Correction.SupportedClaims)

	require.NotNil(t, run.Report)
	assert.Equal(t, 0.0, run.Report.Quality.SupportRatio)
	assert.True(t, run.Report.Summary.HasHallucination)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestRun_ClaimIDsRoundTrip(t *testing.T) {
	p := newTestPipeline(t, scriptedFake(), testConfig())

	run := p.Run(context.Background(), pythonQuery, "")
	require.True(t, run.Success, run.Error)

	var claimIDs, evidenceIDs, verifiedIDs []string
	for _, c := range run.Claims {
		claimIDs = append(claimIDs, c.ID)
	}
	for id := range run.EvidenceMap {
		evidenceIDs = append(evidenceIDs, id)
	}
	for _, v := range run.Verifications {
		verifiedIDs = append(verifiedIDs, v.ClaimID)
	}
	sort.Strings(evidenceIDs)

	if diff := cmp.Diff(claimIDs, evidenceIDs); diff != "" {
		t.Errorf("evidence map ids mismatch (-claims +evidence):\n%s", diff)
	}
	if diff := cmp.Diff(claimIDs, verifiedIDs); diff != "" {
		t.Errorf("verification ids mismatch (-claims +verifications):\n%s", diff)
	}
}

func TestRunWithAnswer_SkipsGeneration(t *testing.T) {
	fake := scriptedFake()
	p := newTestPipeline(t, fake, testConfig())

	run := p.RunWithAnswer(context.Background(), pythonQuery, pythonAnswer, "")

	require.True(t, run.Success, run.Error)
	assert.Equal(t, model.StageSkipped, run.Stages[0].Status)
	assert.Equal(t, "caller", run.Stages[0].Metadata["source"])
	assert.Equal(t, 0, fake.CallsMatching("Answer the following question directly"))
	assert.Contains(t, run.StagesCompleted(), model.StageInitialAnswer)
}

func TestRun_ContextReachesPrompt(t *testing.T) {
	fake := scriptedFake()
	p := newTestPipeline(t, fake, testConfig())

	run := p.Run(context.Background(), pythonQuery, "programming languages")
	require.True(t, run.Success, run.Error)
	assert.Equal(t, 1, fake.CallsMatching("Context: programming languages"))
}

func TestRun_DegradedStagesStillSucceed(t *testing.T) {
	fake := llmtest.New().
		On("hallucination detection expert", "not json at all").
		OnError("Verification summary", "upstream timeout").
		OnError("Claim to verify", "upstream timeout").
		OnError("atomic factual assertions", "upstream timeout").
		OnError("query intent classifier", "upstream timeout")
	p := newTestPipeline(t, fake, testConfig())

	run := p.RunWithAnswer(context.Background(), pythonQuery, pythonAnswer, "")

	require.True(t, run.Success, run.Error)
	assert.Equal(t, model.IntentFactual, run.Intent, "classifier falls back to the default")
	require.NotEmpty(t, run.Claims)
	for _, c := range run.Claims {
		assert.False(t, c.Atomic, "sentence fallback claims")
	}
	for _, v := range run.Verifications {
		assert.Equal(t, model.VerdictUnverified, v.Verdict)
		assert.Equal(t, 0.0, v.Confidence)
	}
	assert.True(t, run.Correction.Failed)
	assert.Contains(t, run.CorrectedAnswer(), "upstream timeout")
	assert.False(t, run.Hallucination.HasHallucination)
	assert.NotEmpty(t, run.Hallucination.ParseError)
	assert.NotNil(t, run.Report)
}

func TestRun_InitialAnswerFailure(t *testing.T) {
	fake := llmtest.New().OnError("Answer the following question directly", "401 unauthorized")
	p := newTestPipeline(t, fake, testConfig())

	run := p.Run(context.Background(), pythonQuery, "")

	assert.False(t, run.Success)
	assert.Equal(t, model.StageInitialAnswer, run.FailedStage)
	assert.Contains(t, run.Error, "401 unauthorized")
	require.Len(t, run.Stages, 1)
	assert.Equal(t, model.StageFailed, run.Stages[0].Status)
	assert.False(t, run.FinishedAt.IsZero())
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, []model.Claim, string, model.Intent) (model.EvidenceMap, error) {
	return nil, fmt.Errorf("%w: search: %w", store.ErrRetrieval, errors.New("index offline"))
}

func TestRun_RetrievalErrorIsFatal(t *testing.T) {
	base := newTestPipeline(t, scriptedFake(), testConfig())
	deps := base.deps
	deps.Retriever = failingRetriever{}
	p := NewWithDeps(deps, testConfig())

	run := p.RunWithAnswer(context.Background(), pythonQuery, pythonAnswer, "")

	assert.False(t, run.Success)
	assert.Equal(t, model.StageRetrieve, run.FailedStage)
	assert.Contains(t, run.Error, "retrieval failed")
	assert.Contains(t, run.Error, "index offline")
	assert.Equal(t, []string{model.StageInitialAnswer, model.StageClassify, model.StageExtract, model.StageRetrieve}, stageNames(run))
	assert.Nil(t, run.Verifications)
	assert.Nil(t, run.Report)
}

func TestRun_EmbedderOutageIsFatal(t *testing.T) {
	ctx := context.Background()
	embedder := &storetest.KeywordEmbedder{}
	st := store.NewMemoryStore("kb", embedder)
	_, err := st.Add(ctx, pythonDocs, nil)
	require.NoError(t, err)
	embedder.Err = storetest.ErrUnavailable

	p, err := New(ctx, testConfig(), WithGenerator(scriptedFake()), WithStore(st))
	require.NoError(t, err)

	run := p.RunWithAnswer(ctx, pythonQuery, pythonAnswer, "")
	assert.False(t, run.Success)
	assert.Equal(t, model.StageRetrieve, run.FailedStage)
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, string) []model.Claim {
	var m map[string]int
	m["boom"]++
	return nil
}

func TestRun_PanicIsContained(t *testing.T) {
	base := newTestPipeline(t, scriptedFake(), testConfig())
	deps := base.deps
	deps.Extractor = panickingExtractor{}
	p := NewWithDeps(deps, testConfig())

	run := p.RunWithAnswer(context.Background(), pythonQuery, pythonAnswer, "")

	assert.False(t, run.Success)
	assert.Equal(t, model.StageExtract, run.FailedStage)
	assert.Contains(t, run.Error, "panic")
	last := run.Stages[len(run.Stages)-1]
	assert.Equal(t, model.StageExtract, last.Name)
	assert.Equal(t, model.StageFailed, last.Status)
}

type shortVerifier struct{}

func (shortVerifier) VerifyAll(_ context.Context, claims []model.Claim, _ model.EvidenceMap, _ string, _ model.Intent) []model.Verification {
	return []model.Verification{{ClaimID: claims[0].ID, Verdict: model.VerdictSupported}}
}

func TestRun_MissingVerificationFails(t *testing.T) {
	base := newTestPipeline(t, scriptedFake(), testConfig())
	deps := base.deps
	deps.Verifier = shortVerifier{}
	p := NewWithDeps(deps, testConfig())

	run := p.RunWithAnswer(context.Background(), pythonQuery, pythonAnswer, "")
	assert.False(t, run.Success)
	assert.Equal(t, model.StageVerify, run.FailedStage)
}

func TestRun_CancelledContext(t *testing.T) {
	fake := scriptedFake()
	p := newTestPipeline(t, fake, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := p.Run(ctx, pythonQuery, "")

	assert.False(t, run.Success)
	assert.Equal(t, model.StageInitialAnswer, run.FailedStage)
	assert.Contains(t, run.Error, context.Canceled.Error())
	assert.Equal(t, 0, fake.Calls())
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: model.StageRetrieve, Err: store.ErrRetrieval}
	assert.Equal(t, "stage retrieve_evidence: retrieval failed", err.Error())
	assert.ErrorIs(t, err, store.ErrRetrieval)
}

func TestBatch_PreservesOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.Concurrency = 3
	p := newTestPipeline(t, scriptedFake(), cfg)

	queries := []string{"what is Python?", "who created Python?", "when was Python released?", "is Python compiled?"}
	runs := p.Batch(context.Background(), queries, "")

	require.Len(t, runs, len(queries))
	for i, run := range runs {
		require.NotNil(t, run)
		assert.Equal(t, queries[i], run.Query)
		assert.True(t, run.Success, run.Error)
	}
}

func TestBatchRequests_MixesSuppliedAnswers(t *testing.T) {
	fake := scriptedFake()
	p := newTestPipeline(t, fake, testConfig())

	runs := p.BatchRequests(context.Background(), []worker.Request{
		{Query: pythonQuery},
		{Query: pythonQuery, Answer: pythonAnswer},
	})

	require.Len(t, runs, 2)
	assert.Equal(t, model.StageOK, runs[0].Stages[0].Status)
	assert.Equal(t, model.StageSkipped, runs[1].Stages[0].Status)
	assert.Equal(t, 1, fake.CallsMatching("Answer the following question directly"))
}

func TestStatus(t *testing.T) {
	p := newTestPipeline(t, scriptedFake(), testConfig())

	st := p.Status(context.Background())

	assert.Equal(t, "running", st.Status)
	assert.True(t, st.ConfigLoaded)
	for _, name := range []string{"generator", "classifier", "extractor", "retriever", "verifier", "corrector", "detector", "scorer", "store"} {
		assert.True(t, st.Components[name].Initialized, name)
	}
	assert.Equal(t, "memory backend, 3 documents", st.Components["store"].Detail)
}

func TestNew_ConfigurationError(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "nonexistent"

	_, err := New(context.Background(), cfg, WithStore(store.NewMemoryStore("kb", &storetest.KeywordEmbedder{})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create gateway")
}

package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/store"
)

// IntentClassifier labels a query with an intent from the configured set
type IntentClassifier interface {
	Classify(ctx context.Context, query string) model.Intent
}

// ClaimExtractor decomposes text into claims; never returns an empty slice
type ClaimExtractor interface {
	Extract(ctx context.Context, text string) []model.Claim
}

// EvidenceRetriever builds the evidence map of a run
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, claims []model.Claim, query string, intent model.Intent) (model.EvidenceMap, error)
}

// ClaimVerifier returns one verification per claim, in claim order
type ClaimVerifier interface {
	VerifyAll(ctx context.Context, claims []model.Claim, evidence model.EvidenceMap, query string, intent model.Intent) []model.Verification
}

// AnswerCorrector regenerates the answer from verdicts
type AnswerCorrector interface {
	Correct(ctx context.Context, original string, verifications []model.Verification, query string, intent model.Intent) *model.CorrectionResult
}

// HallucinationDetector compares the initial and corrected answers
type HallucinationDetector interface {
	Detect(ctx context.Context, query, initial, corrected string, claims []model.Claim, evidence model.EvidenceMap) *model.HallucinationAnalysis
}

// ReportScorer assembles the final report
type ReportScorer interface {
	Calculate(run *model.PipelineRun) *model.FinalReport
}

// Deps holds the stage components of a pipeline
type Deps struct {
	Generator  llm.Generator // Initial answer generation
	Store      store.Store   // Optional; reported by Status and closed by Close
	Classifier IntentClassifier
	Extractor  ClaimExtractor
	Retriever  EvidenceRetriever
	Verifier   ClaimVerifier
	Corrector  AnswerCorrector
	Detector   HallucinationDetector
	Scorer     ReportScorer
	Logger     *zap.Logger
}

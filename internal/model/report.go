package model

import "time"

// Stage names in execution order
const (
	StageInitialAnswer = "generate_initial_answer"
	StageClassify      = "classify_intent"
	StageExtract       = "extract_claims"
	StageRetrieve      = "retrieve_evidence"
	StageVerify        = "verify_claims"
	StageCorrect       = "correct_answer"
	StageDetect        = "detect_hallucination"
	StageAssemble      = "assemble_report"
)

// StageOrder is the fixed stage sequence of a run
var StageOrder = []string{
	StageInitialAnswer,
	StageClassify,
	StageExtract,
	StageRetrieve,
	StageVerify,
	StageCorrect,
	StageDetect,
	StageAssemble,
}

// StageStatus is the outcome of one stage
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageRecord is one entry of the ordered execution log
type StageRecord struct {
	Name     string                 `json:"name"`
	Status   StageStatus            `json:"status"`
	Duration time.Duration          `json:"duration_ns"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"` // Stage-specific data
}

// HallucinationType classifies detected hallucinations
type HallucinationType string

const (
	HallucinationFactual     HallucinationType = "FACTUAL"
	HallucinationLogical     HallucinationType = "LOGICAL"
	HallucinationEvidential  HallucinationType = "EVIDENTIAL"
	HallucinationConsistency HallucinationType = "CONSISTENCY"
	HallucinationMixed       HallucinationType = "MIXED"
	HallucinationNone        HallucinationType = "NONE"
)

// ParseHallucinationType maps a label onto the closed set, NONE otherwise
func ParseHallucinationType(s string) HallucinationType {
	switch t := HallucinationType(s); t {
	case HallucinationFactual, HallucinationLogical, HallucinationEvidential,
		HallucinationConsistency, HallucinationMixed, HallucinationNone:
		return t
	}
	return HallucinationNone
}

// AffectedSection is a span of the answer flagged as hallucinated
type AffectedSection struct {
	Text       string `json:"text"`
	Type       string `json:"type,omitempty"`
	Severity   string `json:"severity,omitempty"` // LOW, MEDIUM, HIGH
	Correction string `json:"correction,omitempty"`
}

// ComparisonAnalysis compares the initial and corrected answers
type ComparisonAnalysis struct {
	InitialAnswerQuality string `json:"initial_answer_quality,omitempty"`
	VerificationImpact   string `json:"verification_impact,omitempty"`
	KeyDifferences       string `json:"key_differences,omitempty"`
	OverallImprovement   string `json:"overall_improvement,omitempty"`
}

// HallucinationAnalysis is the outcome of comparing answers against evidence
type HallucinationAnalysis struct {
	HasHallucination   bool               `json:"has_hallucination"`
	Type               HallucinationType  `json:"hallucination_type"`
	Confidence         float64            `json:"confidence"`
	AffectedSections   []AffectedSection  `json:"affected_sections"`
	ComparisonAnalysis ComparisonAnalysis `json:"comparison_analysis"`
	Recommendations    []string           `json:"recommendations"`
	ParseError         string             `json:"parse_error,omitempty"`  // Set when output was malformed
	RawResponse        string             `json:"raw_response,omitempty"` // Truncated raw output for diagnostics
}

// PipelineRun aggregates everything produced while answering one query.
// It is owned by the orchestrator and frozen once FinishedAt is set.
type PipelineRun struct {
	ID            string                 `json:"id"`
	Query         string                 `json:"query"`
	Context       string                 `json:"context,omitempty"`
	Intent        Intent                 `json:"intent"`
	InitialAnswer string                 `json:"initial_answer"`
	Claims        []Claim                `json:"claims"`
	EvidenceMap   EvidenceMap            `json:"evidence_map"`
	Verifications []Verification         `json:"verifications"`
	Correction    *CorrectionResult      `json:"correction,omitempty"`
	Hallucination *HallucinationAnalysis `json:"hallucination_analysis,omitempty"`
	Report        *FinalReport           `json:"final_report,omitempty"`
	Stages        []StageRecord          `json:"stages"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	FailedStage   string                 `json:"failed_stage,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
}

// CorrectedAnswer returns the corrected text, empty when correction never ran
func (r *PipelineRun) CorrectedAnswer() string {
	if r.Correction == nil {
		return ""
	}
	return r.Correction.CorrectedAnswer
}

// Duration returns the wall time of the run
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StagesCompleted lists stage names that finished without failure
func (r *PipelineRun) StagesCompleted() []string {
	var names []string
	for _, s := range r.Stages {
		if s.Status != StageFailed {
			names = append(names, s.Name)
		}
	}
	return names
}

// FinalReport is the assembled summary of a run
type FinalReport struct {
	Summary         ReportSummary  `json:"summary"`
	Quality         QualityMetrics `json:"quality_metrics"`
	Signals         []Signal       `json:"signals"`
	Recommendations []string       `json:"recommendations"`
}

// ReportSummary holds headline numbers of a run
type ReportSummary struct {
	Query                 string `json:"query"`
	Intent                Intent `json:"intent"`
	InitialAnswerLength   int    `json:"initial_answer_length"`
	CorrectedAnswerLength int    `json:"corrected_answer_length"`
	TotalClaims           int    `json:"total_claims"`
	SupportedClaims       int    `json:"supported_claims"`
	ContradictedClaims    int    `json:"contradicted_claims"`
	HasHallucination      bool   `json:"has_hallucination"`
}

// QualityMetrics are the derived quality ratios of a run
type QualityMetrics struct {
	AnswerImprovement      float64 `json:"answer_improvement"`
	EvidenceCoverage       float64 `json:"evidence_coverage"`
	VerificationConfidence float64 `json:"verification_confidence"`
	SupportRatio           float64 `json:"support_ratio"`
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalEvidenceCoverage      SignalType = "evidence_coverage"      // Claims with retrieved evidence
	SignalSupportRatio          SignalType = "support_ratio"          // Supported claims ratio
	SignalContradictions        SignalType = "contradictions"         // Contradicted claims present
	SignalVerificationFailures  SignalType = "verification_failures"  // Error or fallback verifications
	SignalAuthorityDistribution SignalType = "authority_distribution" // Authority tier balance of evidence
	SignalHallucination         SignalType = "hallucination"          // Residual hallucination flagged
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

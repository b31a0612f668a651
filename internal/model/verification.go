package model

import (
	"strings"
	"time"
)

// Verdict is the four-valued outcome of checking a claim against evidence
type Verdict string

const (
	VerdictSupported          Verdict = "SUPPORTED"
	VerdictContradicted       Verdict = "CONTRADICTED"
	VerdictPartiallySupported Verdict = "PARTIALLY_SUPPORTED"
	VerdictUnverified         Verdict = "UNVERIFIED"
)

// Verdicts lists the closed verdict set in display order
var Verdicts = []Verdict{VerdictSupported, VerdictContradicted, VerdictPartiallySupported, VerdictUnverified}

// ParseVerdict maps a model-emitted label onto the closed set.
// The second return value is false for anything outside the set.
func ParseVerdict(s string) (Verdict, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, v := range Verdicts {
		if normalized == string(v) {
			return v, true
		}
	}
	return VerdictUnverified, false
}

// Verification is the judgment of one claim against its evidence
type Verification struct {
	ClaimID                string            `json:"claim_id"`
	ClaimText              string            `json:"claim_text"`
	Verdict                Verdict           `json:"verdict"`
	Confidence             float64           `json:"confidence"`
	SupportingEvidence     []EvidenceSnippet `json:"supporting_evidence"`
	ContradictingEvidence  []EvidenceSnippet `json:"contradicting_evidence"`
	Reasoning              string            `json:"reasoning"`
	IntentSpecificAnalysis string            `json:"intent_specific_analysis"`
	EvidenceCount          int               `json:"evidence_count"`
	Error                  bool              `json:"error,omitempty"`    // Gateway failed for this claim
	Fallback               bool              `json:"fallback,omitempty"` // Model output could not be parsed
	Timestamp              time.Time         `json:"timestamp"`
}

// CorrectionResult is the regenerated answer plus verdict tallies
type CorrectionResult struct {
	CorrectedAnswer    string `json:"corrected_answer"`
	SupportedClaims    int    `json:"supported_claims"`
	ContradictedClaims int    `json:"contradicted_claims"`
	Failed             bool   `json:"failed,omitempty"` // CorrectedAnswer holds a diagnostic
	Usage              Usage  `json:"usage"`
}

// Usage tracks token consumption of one generation
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CountVerdicts tallies verifications by verdict
func CountVerdicts(verifications []Verification) map[Verdict]int {
	counts := make(map[Verdict]int, len(Verdicts))
	for _, v := range verifications {
		counts[v.Verdict]++
	}
	return counts
}

// SupportRatio returns supported / total, 0 for an empty list
func SupportRatio(verifications []Verification) float64 {
	if len(verifications) == 0 {
		return 0
	}
	return float64(CountVerdicts(verifications)[VerdictSupported]) / float64(len(verifications))
}

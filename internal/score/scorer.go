// Package score derives quality metrics, signals and recommendations of a run
package score

import (
	"fmt"
	"unicode/utf8"

	"github.com/ppiankov/rectify/internal/authority"
	"github.com/ppiankov/rectify/internal/model"
)

// Thresholds driving recommendations
const (
	MinEvidenceCoverage = 0.5
	MinSupportRatio     = 0.7
)

// Recommendations emitted by the scorer
const (
	RecommendHallucination = "potential hallucination detected, widen evidence retrieval"
	RecommendCoverage      = "evidence coverage is low, expand the knowledge base"
	RecommendSupport       = "supported-claim ratio is low, refine the retrieval strategy"
	RecommendNone          = "answer quality is good, no action needed"
)

// Scorer assembles the final report of a run
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate builds the final report from the run's stage outputs
func (s *Scorer) Calculate(run *model.PipelineRun) *model.FinalReport {
	counts := model.CountVerdicts(run.Verifications)
	corrected := run.CorrectedAnswer()
	hallucination := run.Hallucination != nil && run.Hallucination.HasHallucination

	quality := model.QualityMetrics{
		AnswerImprovement:      answerImprovement(run.InitialAnswer, corrected, run.Verifications),
		EvidenceCoverage:       evidenceCoverage(run.Claims, run.EvidenceMap),
		VerificationConfidence: averageConfidence(run.Verifications),
		SupportRatio:           model.SupportRatio(run.Verifications),
	}

	var signals []model.Signal
	signals = append(signals, s.coverageSignal(run.Claims, quality.EvidenceCoverage))
	signals = append(signals, s.supportSignal(len(run.Verifications), counts, quality.SupportRatio))
	if sig, ok := s.contradictionSignal(counts); ok {
		signals = append(signals, sig)
	}
	if sig, ok := s.failureSignal(run.Verifications); ok {
		signals = append(signals, sig)
	}
	signals = append(signals, s.authoritySignal(run.EvidenceMap))
	if hallucination {
		signals = append(signals, s.hallucinationSignal(run.Hallucination))
	}

	return &model.FinalReport{
		Summary: model.ReportSummary{
			Query:                 run.Query,
			Intent:                run.Intent,
			InitialAnswerLength:   utf8.RuneCountInString(run.InitialAnswer),
			CorrectedAnswerLength: utf8.RuneCountInString(corrected),
			TotalClaims:           len(run.Claims),
			SupportedClaims:       counts[model.VerdictSupported],
			ContradictedClaims:    counts[model.VerdictContradicted],
			HasHallucination:      hallucination,
		},
		Quality:         quality,
		Signals:         signals,
		Recommendations: recommendations(hallucination, quality),
	}
}

// answerImprovement averages the corrected/initial length ratio with the
// support ratio. 0 when there is no initial answer.
func answerImprovement(initial, corrected string, verifications []model.Verification) float64 {
	initialLen := utf8.RuneCountInString(initial)
	if initialLen == 0 {
		return 0
	}
	lengthRatio := float64(utf8.RuneCountInString(corrected)) / float64(initialLen)
	return (lengthRatio + model.SupportRatio(verifications)) / 2
}

// evidenceCoverage is the fraction of claims with at least one snippet
func evidenceCoverage(claims []model.Claim, evidence model.EvidenceMap) float64 {
	if len(claims) == 0 {
		return 0
	}
	covered := 0
	for _, c := range claims {
		if len(evidence[c.ID].Evidence) > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(claims))
}

func averageConfidence(verifications []model.Verification) float64 {
	if len(verifications) == 0 {
		return 0
	}
	var total float64
	for _, v := range verifications {
		total += v.Confidence
	}
	return total / float64(len(verifications))
}

func recommendations(hallucination bool, q model.QualityMetrics) []string {
	var recs []string
	if hallucination {
		recs = append(recs, RecommendHallucination)
	}
	if q.EvidenceCoverage < MinEvidenceCoverage {
		recs = append(recs, RecommendCoverage)
	}
	if q.SupportRatio < MinSupportRatio {
		recs = append(recs, RecommendSupport)
	}
	if len(recs) == 0 {
		return []string{RecommendNone}
	}
	return recs
}

func (s *Scorer) coverageSignal(claims []model.Claim, coverage float64) model.Signal {
	if len(claims) == 0 {
		return model.Signal{
			Type:        model.SignalEvidenceCoverage,
			Severity:    model.SeverityCritical,
			Description: "No claims extracted",
			Data:        map[string]interface{}{"claims": 0},
		}
	}

	severity := model.SeverityInfo
	if coverage < MinEvidenceCoverage {
		severity = model.SeverityCritical
	} else if coverage < 1.0 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalEvidenceCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Claims with evidence: %.0f%%", coverage*100),
		Data: map[string]interface{}{
			"claims":   len(claims),
			"coverage": coverage,
			"formula":  "claims_with_snippets / claim_count",
		},
	}
}

func (s *Scorer) supportSignal(total int, counts map[model.Verdict]int, ratio float64) model.Signal {
	severity := model.SeverityInfo
	if ratio < MinSupportRatio {
		severity = model.SeverityWarning
	}
	if total > 0 && counts[model.VerdictSupported] == 0 {
		severity = model.SeverityCritical
	}

	return model.Signal{
		Type:        model.SignalSupportRatio,
		Severity:    severity,
		Description: fmt.Sprintf("Supported claims: %d/%d", counts[model.VerdictSupported], total),
		Data: map[string]interface{}{
			"supported":           counts[model.VerdictSupported],
			"partially_supported": counts[model.VerdictPartiallySupported],
			"unverified":          counts[model.VerdictUnverified],
			"contradicted":        counts[model.VerdictContradicted],
			"total":               total,
			"ratio":               ratio,
			"formula":             "supported / total",
		},
	}
}

func (s *Scorer) contradictionSignal(counts map[model.Verdict]int) (model.Signal, bool) {
	n := counts[model.VerdictContradicted]
	if n == 0 {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalContradictions,
		Severity:    model.SeverityCritical,
		Description: fmt.Sprintf("%d claim(s) contradicted by evidence", n),
		Data:        map[string]interface{}{"contradicted": n},
	}, true
}

func (s *Scorer) failureSignal(verifications []model.Verification) (model.Signal, bool) {
	errored, fallback := 0, 0
	for _, v := range verifications {
		switch {
		case v.Error:
			errored++
		case v.Fallback:
			fallback++
		}
	}
	if errored+fallback == 0 {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalVerificationFailures,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Degraded verifications: %d gateway error(s), %d unparseable response(s)", errored, fallback),
		Data: map[string]interface{}{
			"errors":    errored,
			"fallbacks": fallback,
			"total":     len(verifications),
		},
	}, true
}

// authoritySignal weights snippets by tier. Unclassified snippets count
// toward the total but add no weight.
func (s *Scorer) authoritySignal(evidence model.EvidenceMap) model.Signal {
	var snippets []model.EvidenceSnippet
	for _, entry := range evidence {
		snippets = append(snippets, entry.Evidence...)
	}
	if len(snippets) == 0 {
		return model.Signal{
			Type:        model.SignalAuthorityDistribution,
			Severity:    model.SeverityWarning,
			Description: "No evidence retrieved",
			Data:        map[string]interface{}{"total": 0},
		}
	}

	dist := authority.Distribution(snippets)
	primary := dist[model.TierPrimary]
	secondary := dist[model.TierSecondary]
	tertiary := dist[model.TierTertiary]
	total := len(snippets)
	weighted := float64(primary*3+secondary*2+tertiary) / float64(total*3)

	severity := model.SeverityInfo
	if primary == 0 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:     model.SignalAuthorityDistribution,
		Severity: severity,
		Description: fmt.Sprintf("Authority distribution: %d primary, %d secondary, %d tertiary, %d unclassified",
			primary, secondary, tertiary, dist[model.TierUnknown]),
		Data: map[string]interface{}{
			"primary":      primary,
			"secondary":    secondary,
			"tertiary":     tertiary,
			"unclassified": dist[model.TierUnknown],
			"total":        total,
			"weighted":     weighted,
			"formula":      "(primary*3 + secondary*2 + tertiary*1) / (total*3)",
		},
	}
}

func (s *Scorer) hallucinationSignal(a *model.HallucinationAnalysis) model.Signal {
	return model.Signal{
		Type:        model.SignalHallucination,
		Severity:    model.SeverityCritical,
		Description: fmt.Sprintf("Residual hallucination detected (%s, confidence %.2f)", a.Type, a.Confidence),
		Data: map[string]interface{}{
			"type":              string(a.Type),
			"confidence":        a.Confidence,
			"affected_sections": len(a.AffectedSections),
		},
	}
}

// Package correct regenerates an answer from claim verdicts
package correct

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/jsonx"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

const reasoningExcerpt = 100

// Corrector regenerates answers using an intent-specific strategy
type Corrector struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewCorrector creates an answer corrector
func NewCorrector(gen llm.Generator, logger *zap.Logger) *Corrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrector{gen: gen, logger: logger}
}

// Correct regenerates original using verifications. Verdict tallies are
// computed regardless of generation success; a gateway failure leaves a
// diagnostic in CorrectedAnswer and sets Failed.
func (c *Corrector) Correct(ctx context.Context, original string, verifications []model.Verification, query string, intent model.Intent) *model.CorrectionResult {
	counts := model.CountVerdicts(verifications)
	result := &model.CorrectionResult{
		SupportedClaims:    counts[model.VerdictSupported],
		ContradictedClaims: counts[model.VerdictContradicted],
	}

	prompt := Prompt(StrategyFor(intent), query, intent, original, Summary(verifications))
	res := c.gen.GenerateWithRetry(ctx, prompt, llm.Options{
		MaxTokens:   1200,
		Temperature: 0.3,
	})
	if res.Err {
		c.logger.Warn("correction failed", zap.String("diagnostic", res.Text))
		result.CorrectedAnswer = "correction failed: " + res.Text
		result.Failed = true
		return result
	}

	result.CorrectedAnswer = strings.TrimSpace(res.Text)
	result.Usage = res.Usage
	return result
}

// Prompt renders the correction prompt of strategy
func Prompt(s Strategy, query string, intent model.Intent, original, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As %s, regenerate an accurate answer based on the verification results.\n\n", s.Role)
	fmt.Fprintf(&b, "Query intent: %s - %s\n", intent, s.Label)
	fmt.Fprintf(&b, "Original query: %q\n", query)
	fmt.Fprintf(&b, "Original answer: %s\n\n", original)
	fmt.Fprintf(&b, "Verification summary:\n%s\n\n", summary)
	fmt.Fprintf(&b, "Write the %s with these requirements:\n", s.Deliverable)
	for i, r := range s.Requirements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	fmt.Fprintf(&b, "\n%s\n\n", s.Closing)
	fmt.Fprintf(&b, "%s%s:\n", strings.ToUpper(s.Deliverable[:1]), s.Deliverable[1:])
	return b.String()
}

// Summary renders verifications as a readable per-claim digest
func Summary(verifications []model.Verification) string {
	if len(verifications) == 0 {
		return "No claims were verified, or every verification failed."
	}

	var b strings.Builder
	for i, v := range verifications {
		claim := v.ClaimText
		if claim == "" {
			claim = fmt.Sprintf("claim %d", i+1)
		}
		verdict := v.Verdict
		if verdict == "" {
			verdict = model.VerdictUnverified
		}
		reasoning := v.Reasoning
		if reasoning == "" {
			reasoning = "no detailed reasoning"
		}

		fmt.Fprintf(&b, "Claim %d: %s\n", i+1, claim)
		fmt.Fprintf(&b, "Verdict: %s (confidence: %.2f)\n", verdict, v.Confidence)
		if n := len(v.SupportingEvidence); n > 0 {
			fmt.Fprintf(&b, "Supporting evidence: %d\n", n)
		}
		if n := len(v.ContradictingEvidence); n > 0 {
			fmt.Fprintf(&b, "Contradicting evidence: %d\n", n)
		}
		if len([]rune(reasoning)) > reasoningExcerpt {
			reasoning = jsonx.Truncate(reasoning, reasoningExcerpt) + "..."
		}
		fmt.Fprintf(&b, "Reasoning: %s\n---\n", reasoning)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Package verify judges claims against retrieved evidence
package verify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rectify/internal/jsonx"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/metrics"
	"github.com/ppiankov/rectify/internal/model"
)

// Confidence assigned to degraded verifications
const (
	FallbackConfidence = 0.3
	ErrorConfidence    = 0.0
)

// rawExcerpt is how much of an unparseable response is kept in reasoning
const rawExcerpt = 200

// Verifier sends one judgment prompt per claim and parses the JSON verdict
type Verifier struct {
	gen         llm.Generator
	logger      *zap.Logger
	maxTokens   int
	temperature float64
	workers     int
	maxAttempts int
	now         func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWorkers sets how many claims are verified concurrently
func WithWorkers(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithMaxAttempts caps gateway attempts per claim. 0 keeps the gateway default.
func WithMaxAttempts(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

// NewVerifier creates a claim verifier
func NewVerifier(gen llm.Generator, opts ...Option) *Verifier {
	v := &Verifier{
		gen:         gen,
		logger:      zap.NewNop(),
		maxTokens:   800,
		temperature: 0.1,
		workers:     1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify judges claim against evidence. It always returns a verdict from
// the closed set; gateway and parse failures yield degraded verifications.
func (v *Verifier) Verify(ctx context.Context, claim model.Claim, evidence []model.EvidenceSnippet, query string, intent model.Intent) model.Verification {
	if len(evidence) == 0 {
		return v.unverified(claim)
	}

	prompt := llm.VerificationPrompt(string(intent), query, claim.Text, promptEvidence(evidence))
	res := v.gen.GenerateWithRetry(ctx, prompt, llm.Options{
		MaxTokens:   v.maxTokens,
		Temperature: v.temperature,
		MaxRetries:  v.maxAttempts,
	})

	var out model.Verification
	if res.Err {
		v.logger.Warn("verification call failed",
			zap.String("claim_id", claim.ID),
			zap.String("diagnostic", res.Text))
		out = v.errorResult(claim, res.Text)
	} else {
		out = v.Parse(res.Text, claim)
	}
	out.EvidenceCount = len(evidence)
	return out
}

// VerifyAll returns exactly one verification per claim, in claim order.
// Claims missing from evidenceMap or with no snippets are marked
// UNVERIFIED without a gateway call.
func (v *Verifier) VerifyAll(ctx context.Context, claims []model.Claim, evidenceMap model.EvidenceMap, query string, intent model.Intent) []model.Verification {
	results := make([]model.Verification, len(claims))

	verifyAt := func(ctx context.Context, i int) {
		claim := claims[i]
		entry, ok := evidenceMap[claim.ID]
		if !ok || len(entry.Evidence) == 0 {
			results[i] = v.unverified(claim)
		} else {
			results[i] = v.Verify(ctx, claim, entry.Evidence, query, intent)
		}
		observe(results[i])
	}

	if v.workers <= 1 || len(claims) <= 1 {
		for i := range claims {
			verifyAt(ctx, i)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := range claims {
		g.Go(func() error {
			verifyAt(gctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// verdictResponse is the JSON object requested from the model
type verdictResponse struct {
	Verdict                *string           `json:"verdict"`
	Confidence             *jsonx.Number     `json:"confidence"`
	SupportingEvidence     []json.RawMessage `json:"supporting_evidence"`
	ContradictingEvidence  []json.RawMessage `json:"contradicting_evidence"`
	Reasoning              string            `json:"reasoning"`
	IntentSpecificAnalysis string            `json:"intent_specific_analysis"`
}

// Parse decodes a verification response. Missing verdict or confidence,
// an unknown verdict label, or undecodable JSON produce the fallback.
func (v *Verifier) Parse(raw string, claim model.Claim) model.Verification {
	var resp verdictResponse
	if err := jsonx.DecodeFirst(raw, &resp); err != nil {
		v.logger.Debug("verification response not parseable", zap.String("claim_id", claim.ID), zap.Error(err))
		return v.fallback(claim, raw)
	}
	if resp.Verdict == nil || resp.Confidence == nil {
		return v.fallback(claim, raw)
	}
	verdict, ok := model.ParseVerdict(*resp.Verdict)
	if !ok {
		return v.fallback(claim, raw)
	}

	return model.Verification{
		ClaimID:                claim.ID,
		ClaimText:              claim.Text,
		Verdict:                verdict,
		Confidence:             jsonx.Clamp01(float64(*resp.Confidence)),
		SupportingEvidence:     decodeSnippets(resp.SupportingEvidence, "relevance_score"),
		ContradictingEvidence:  decodeSnippets(resp.ContradictingEvidence, "contradiction_score"),
		Reasoning:              resp.Reasoning,
		IntentSpecificAnalysis: resp.IntentSpecificAnalysis,
		Timestamp:              v.now(),
	}
}

// unverified is the verdict for a claim without evidence
func (v *Verifier) unverified(claim model.Claim) model.Verification {
	return model.Verification{
		ClaimID:               claim.ID,
		ClaimText:             claim.Text,
		Verdict:               model.VerdictUnverified,
		Confidence:            0,
		SupportingEvidence:    []model.EvidenceSnippet{},
		ContradictingEvidence: []model.EvidenceSnippet{},
		Reasoning:             "no relevant evidence was retrieved for this claim",
		Timestamp:             v.now(),
	}
}

func (v *Verifier) fallback(claim model.Claim, raw string) model.Verification {
	return model.Verification{
		ClaimID:                claim.ID,
		ClaimText:              claim.Text,
		Verdict:                model.VerdictUnverified,
		Confidence:             FallbackConfidence,
		SupportingEvidence:     []model.EvidenceSnippet{},
		ContradictingEvidence:  []model.EvidenceSnippet{},
		Reasoning:              "could not parse verification response, raw response: " + jsonx.Truncate(raw, rawExcerpt) + "...",
		IntentSpecificAnalysis: "response format invalid, no intent-specific analysis available",
		Fallback:               true,
		Timestamp:              v.now(),
	}
}

func (v *Verifier) errorResult(claim model.Claim, diagnostic string) model.Verification {
	return model.Verification{
		ClaimID:               claim.ID,
		ClaimText:             claim.Text,
		Verdict:               model.VerdictUnverified,
		Confidence:            ErrorConfidence,
		SupportingEvidence:    []model.EvidenceSnippet{},
		ContradictingEvidence: []model.EvidenceSnippet{},
		Reasoning:             "verification failed: " + diagnostic,
		Error:                 true,
		Timestamp:             v.now(),
	}
}

func observe(v model.Verification) {
	metrics.Verdicts.WithLabelValues(string(v.Verdict), strconv.FormatBool(v.Fallback || v.Error)).Inc()
}

func promptEvidence(snippets []model.EvidenceSnippet) []llm.VerificationEvidence {
	out := make([]llm.VerificationEvidence, len(snippets))
	for i, s := range snippets {
		out[i] = llm.VerificationEvidence{
			Text:       s.Text,
			Source:     s.Source,
			Similarity: s.Similarity,
		}
		if s.Authority != model.TierUnknown {
			out[i].Authority = s.Authority.String()
		}
	}
	return out
}

// decodeSnippets accepts evidence items as objects or bare strings.
// scoreKey names the per-item score field.
func decodeSnippets(items []json.RawMessage, scoreKey string) []model.EvidenceSnippet {
	out := make([]model.EvidenceSnippet, 0, len(items))
	for i, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, model.EvidenceSnippet{Text: text, Rank: i + 1})
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		var sn model.EvidenceSnippet
		_ = json.Unmarshal(obj["text"], &sn.Text)
		_ = json.Unmarshal(obj["source"], &sn.Source)
		var score jsonx.Number
		if err := json.Unmarshal(obj[scoreKey], &score); err == nil {
			sn.Similarity = jsonx.Clamp01(float64(score))
		}
		sn.Rank = i + 1
		out = append(out, sn)
	}
	return out
}

// Package detect compares the initial and corrected answers against
// evidence to flag residual hallucinations
package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/jsonx"
	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

const rawExcerpt = 200

// Detector runs the hallucination comparison
type Detector struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewDetector creates a hallucination detector
func NewDetector(gen llm.Generator, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{gen: gen, logger: logger}
}

// Detect issues one gateway call and parses the JSON analysis. Malformed
// output or a failed call yield has_hallucination=false with ParseError set.
func (d *Detector) Detect(ctx context.Context, query, initial, corrected string, claims []model.Claim, evidence model.EvidenceMap) *model.HallucinationAnalysis {
	prompt := llm.HallucinationPrompt(query, initial, corrected, RenderEvidence(claims, evidence))
	res := d.gen.GenerateWithRetry(ctx, prompt, llm.Options{Temperature: 0.1})
	if res.Err {
		d.logger.Warn("hallucination detection failed", zap.String("diagnostic", res.Text))
		return fallback("hallucination detection failed: "+res.Text, res.Text)
	}

	analysis, err := Parse(res.Text)
	if err != nil {
		d.logger.Debug("hallucination response not parseable", zap.Error(err))
		return fallback("could not parse hallucination analysis: "+err.Error(), res.Text)
	}
	return analysis
}

type analysisResponse struct {
	HasHallucination   *bool             `json:"has_hallucination"`
	Type               string            `json:"hallucination_type"`
	Confidence         jsonx.Number      `json:"confidence"`
	AffectedSections   []json.RawMessage `json:"affected_sections"`
	ComparisonAnalysis json.RawMessage   `json:"comparison_analysis"`
	Recommendations    []string          `json:"recommendations"`
}

var errMissingVerdict = errors.New("has_hallucination missing")

// Parse decodes the first JSON object of raw into an analysis
func Parse(raw string) (*model.HallucinationAnalysis, error) {
	var resp analysisResponse
	if err := jsonx.DecodeFirst(raw, &resp); err != nil {
		return nil, err
	}
	if resp.HasHallucination == nil {
		return nil, errMissingVerdict
	}

	a := &model.HallucinationAnalysis{
		HasHallucination: *resp.HasHallucination,
		Type:             model.ParseHallucinationType(strings.ToUpper(strings.TrimSpace(resp.Type))),
		Confidence:       jsonx.Clamp01(float64(resp.Confidence)),
		AffectedSections: make([]model.AffectedSection, 0, len(resp.AffectedSections)),
		Recommendations:  resp.Recommendations,
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}

	for _, item := range resp.AffectedSections {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			a.AffectedSections = append(a.AffectedSections, model.AffectedSection{Text: text})
			continue
		}
		var section model.AffectedSection
		if err := json.Unmarshal(item, &section); err == nil {
			a.AffectedSections = append(a.AffectedSections, section)
		}
	}

	if len(resp.ComparisonAnalysis) > 0 {
		var summary string
		if err := json.Unmarshal(resp.ComparisonAnalysis, &summary); err == nil {
			a.ComparisonAnalysis.OverallImprovement = summary
		} else {
			_ = json.Unmarshal(resp.ComparisonAnalysis, &a.ComparisonAnalysis)
		}
	}

	return a, nil
}

func fallback(reason, raw string) *model.HallucinationAnalysis {
	return &model.HallucinationAnalysis{
		HasHallucination: false,
		Type:             model.HallucinationNone,
		AffectedSections: []model.AffectedSection{},
		Recommendations:  []string{},
		ParseError:       reason,
		RawResponse:      jsonx.Truncate(raw, rawExcerpt),
	}
}

// RenderEvidence lists each claim with its snippets, in claim order.
// Entries whose id is not among claims follow in id order.
func RenderEvidence(claims []model.Claim, evidence model.EvidenceMap) string {
	var b strings.Builder
	seen := make(map[string]bool, len(claims))

	write := func(entry model.EvidenceEntry) {
		fmt.Fprintf(&b, "Claim: %s\n", entry.ClaimText)
		for i, sn := range entry.Evidence {
			fmt.Fprintf(&b, "Evidence %d: %s (similarity: %.3f)\n", i+1, sn.Text, sn.Similarity)
		}
		b.WriteString("\n")
	}

	for _, c := range claims {
		if entry, ok := evidence[c.ID]; ok {
			write(entry)
			seen[c.ID] = true
		}
	}

	var rest []string
	for id := range evidence {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		write(evidence[id])
	}

	if b.Len() == 0 {
		return "No evidence was retrieved."
	}
	return strings.TrimRight(b.String(), "\n")
}

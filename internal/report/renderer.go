package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/rectify/internal/correct"
	"github.com/ppiankov/rectify/internal/model"
)

// Renderer handles output formatting for pipeline runs
type Renderer struct {
	now func() time.Time
}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// RenderJSON writes a run as indented JSON to path
func (r *Renderer) RenderJSON(run *model.PipelineRun, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, run) })
}

// RenderMarkdown writes a run as Markdown to path
func (r *Renderer) RenderMarkdown(run *model.PipelineRun, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteMarkdown(w, run) })
}

// RenderBatchJSON writes runs plus their summary as JSON to path
func (r *Renderer) RenderBatchJSON(runs []*model.PipelineRun, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteBatchJSON(w, runs) })
}

// RenderBatchCSV writes one CSV row per run to path
func (r *Renderer) RenderBatchCSV(runs []*model.PipelineRun, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteCSV(w, runs) })
}

// WriteJSON encodes v as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// batchDocument is the JSON shape of an exported batch
type batchDocument struct {
	Summary Summary              `json:"summary"`
	Results []*model.PipelineRun `json:"results"`
}

// WriteBatchJSON encodes runs with their batch summary
func (r *Renderer) WriteBatchJSON(w io.Writer, runs []*model.PipelineRun) error {
	return r.WriteJSON(w, batchDocument{
		Summary: Summarize(runs, r.now()),
		Results: runs,
	})
}

// CSVHeader is the column layout of batch CSV exports
var CSVHeader = []string{
	"id", "query", "intent", "success", "failed_stage", "error",
	"duration_ms", "claims", "supported", "contradicted", "support_ratio",
	"evidence_coverage", "has_hallucination", "hallucination_type",
	"initial_answer", "corrected_answer",
}

// WriteCSV writes one row per run
func (r *Renderer) WriteCSV(w io.Writer, runs []*model.PipelineRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, run := range runs {
		if err := cw.Write(csvRow(run)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(run *model.PipelineRun) []string {
	counts := model.CountVerdicts(run.Verifications)
	coverage := ""
	if run.Report != nil {
		coverage = formatFloat(run.Report.Quality.EvidenceCoverage)
	}
	hasHallucination, hallucinationType := "", ""
	if run.Hallucination != nil {
		hasHallucination = strconv.FormatBool(run.Hallucination.HasHallucination)
		hallucinationType = string(run.Hallucination.Type)
	}
	return []string{
		run.ID,
		run.Query,
		string(run.Intent),
		strconv.FormatBool(run.Success),
		run.FailedStage,
		run.Error,
		strconv.FormatInt(run.Duration().Milliseconds(), 10),
		strconv.Itoa(len(run.Claims)),
		strconv.Itoa(counts[model.VerdictSupported]),
		strconv.Itoa(counts[model.VerdictContradicted]),
		formatFloat(model.SupportRatio(run.Verifications)),
		coverage,
		hasHallucination,
		hallucinationType,
		run.InitialAnswer,
		run.CorrectedAnswer(),
	}
}

// WriteMarkdown renders a human-readable report of one run
func (r *Renderer) WriteMarkdown(w io.Writer, run *model.PipelineRun) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Rectify Report\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", run.Query)
	if run.Context != "" {
		fmt.Fprintf(&b, "**Context:** %s\n\n", run.Context)
	}
	fmt.Fprintf(&b, "**Run:** `%s`  \n", run.ID)
	fmt.Fprintf(&b, "**Intent:** %s  \n", run.Intent)
	fmt.Fprintf(&b, "**Duration:** %s  \n", run.Duration().Round(time.Millisecond))
	if run.Success {
		fmt.Fprintf(&b, "**Status:** ✓ success\n\n")
	} else {
		fmt.Fprintf(&b, "**Status:** ✗ failed at `%s`: %s\n\n", run.FailedStage, run.Error)
	}

	if run.InitialAnswer != "" {
		fmt.Fprintf(&b, "## Initial Answer\n\n%s\n\n", run.InitialAnswer)
	}
	if run.Correction != nil {
		fmt.Fprintf(&b, "## Corrected Answer\n\n%s\n\n", run.Correction.CorrectedAnswer)
	}

	if len(run.Verifications) > 0 {
		b.WriteString("## Claims\n\n")
		b.WriteString("| # | Claim | Verdict | Confidence | Evidence |\n")
		b.WriteString("|---|-------|---------|------------|----------|\n")
		for i, v := range run.Verifications {
			fmt.Fprintf(&b, "| %d | %s | %s %s | %.2f | %d |\n",
				i+1, escapeCell(v.ClaimText), verdictMark(v.Verdict), v.Verdict, v.Confidence, v.EvidenceCount)
		}
		b.WriteString("\n")
	}

	if run.Correction != nil && !run.Correction.Failed {
		rep := correct.NewReport(run.InitialAnswer, run.Correction.CorrectedAnswer, run.Verifications)
		b.WriteString("## What Changed\n\n")
		fmt.Fprintf(&b, "%s\n\n", rep.Effectiveness)
		for _, imp := range rep.Improvements {
			fmt.Fprintf(&b, "- %s\n", imp)
		}
		b.WriteString("\n")
	}

	if h := run.Hallucination; h != nil {
		b.WriteString("## Hallucination Analysis\n\n")
		if h.HasHallucination {
			fmt.Fprintf(&b, "⚠ Hallucination detected: **%s** (confidence %.2f)\n\n", h.Type, h.Confidence)
			for _, s := range h.AffectedSections {
				fmt.Fprintf(&b, "- %s", s.Text)
				if s.Severity != "" {
					fmt.Fprintf(&b, " [%s]", s.Severity)
				}
				if s.Correction != "" {
					fmt.Fprintf(&b, " → %s", s.Correction)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		} else if h.ParseError != "" {
			fmt.Fprintf(&b, "Analysis unavailable: %s\n\n", h.ParseError)
		} else {
			b.WriteString("No hallucination detected.\n\n")
		}
	}

	if rep := run.Report; rep != nil {
		q := rep.Quality
		b.WriteString("## Quality\n\n")
		b.WriteString("| Metric | Value |\n|--------|-------|\n")
		fmt.Fprintf(&b, "| Answer improvement | %.2f |\n", q.AnswerImprovement)
		fmt.Fprintf(&b, "| Evidence coverage | %.2f |\n", q.EvidenceCoverage)
		fmt.Fprintf(&b, "| Verification confidence | %.2f |\n", q.VerificationConfidence)
		fmt.Fprintf(&b, "| Support ratio | %.2f |\n\n", q.SupportRatio)

		if len(rep.Signals) > 0 {
			b.WriteString("## Signals\n\n")
			for _, s := range rep.Signals {
				fmt.Fprintf(&b, "- %s **%s**: %s\n", severityMark(s.Severity), s.Type, s.Description)
			}
			b.WriteString("\n")
		}

		if len(rep.Recommendations) > 0 {
			b.WriteString("## Recommendations\n\n")
			for _, rec := range rep.Recommendations {
				fmt.Fprintf(&b, "- %s\n", rec)
			}
			b.WriteString("\n")
		}
	}

	if len(run.Stages) > 0 {
		b.WriteString("## Stages\n\n")
		b.WriteString("| Stage | Status | Duration |\n|-------|--------|----------|\n")
		for _, s := range run.Stages {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n*Generated by rectify at %s*\n", r.now().UTC().Format(time.RFC3339))

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func verdictMark(v model.Verdict) string {
	switch v {
	case model.VerdictSupported:
		return "✓"
	case model.VerdictContradicted:
		return "✗"
	case model.VerdictPartiallySupported:
		return "~"
	default:
		return "?"
	}
}

func severityMark(s model.SignalSeverity) string {
	switch s {
	case model.SeverityCritical:
		return "🔴"
	case model.SeverityWarning:
		return "🟡"
	default:
		return "🟢"
	}
}

// escapeCell keeps table rows on one line
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

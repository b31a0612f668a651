package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ppiankov/rectify/internal/model"
)

// CorrectTool handles the correct_answer MCP tool
type CorrectTool struct {
	runner Runner
}

// NewCorrectTool creates a CorrectTool
func NewCorrectTool(runner Runner) *CorrectTool {
	return &CorrectTool{runner: runner}
}

// Definition returns the MCP tool definition for correct_answer
func (t *CorrectTool) Definition() mcp.Tool {
	return mcp.NewTool("correct_answer",
		mcp.WithDescription(
			"Answer a question, split the answer into claims, verify each claim against the "+
				"knowledge base and return a corrected answer with per-claim verdicts.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("answer",
			mcp.Description("An existing answer to check instead of generating one"),
		),
		mcp.WithString("context",
			mcp.Description("Optional background for the question"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: text (default) or json"),
		),
	)
}

// Handle processes the correct_answer tool call
func (t *CorrectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	answer := req.GetString("answer", "")
	queryContext := req.GetString("context", "")
	format := req.GetString("format", "text")

	var run *model.PipelineRun
	if answer != "" {
		run = t.runner.RunWithAnswer(ctx, query, answer, queryContext)
	} else {
		run = t.runner.Run(ctx, query, queryContext)
	}

	if format == "json" {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		if !run.Success {
			return mcp.NewToolResultError(string(data)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	if !run.Success {
		return mcp.NewToolResultError(fmt.Sprintf("correction failed at %s: %s", run.FailedStage, run.Error)), nil
	}
	return mcp.NewToolResultText(summarize(run)), nil
}

func summarize(run *model.PipelineRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query: %s\nIntent: %s\n\n", run.Query, run.Intent)
	fmt.Fprintf(&b, "Corrected answer:\n%s\n\n", run.CorrectedAnswer())

	fmt.Fprintf(&b, "Claims (%d):\n", len(run.Verifications))
	for i, v := range run.Verifications {
		fmt.Fprintf(&b, "[%d] %s (%.2f) %s\n", i+1, v.Verdict, v.Confidence, v.ClaimText)
	}

	if h := run.Hallucination; h != nil {
		if h.HasHallucination {
			fmt.Fprintf(&b, "\nHallucination: %s (confidence %.2f)\n", h.Type, h.Confidence)
		} else {
			b.WriteString("\nHallucination: none detected\n")
		}
	}

	if rep := run.Report; rep != nil {
		fmt.Fprintf(&b, "Support ratio: %.2f\nEvidence coverage: %.2f\n", rep.Quality.SupportRatio, rep.Quality.EvidenceCoverage)
		if len(rep.Recommendations) > 0 {
			b.WriteString("Recommendations:\n")
			for _, r := range rep.Recommendations {
				fmt.Fprintf(&b, "- %s\n", r)
			}
		}
	}

	return b.String()
}

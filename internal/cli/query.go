package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/report"
)

var (
	queryAnswer  string
	queryContext string
	queryJSON    string
	queryMD      string
	interactive  bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question and correct hallucinations in the answer",
	Long: `Query runs one question through the full pipeline:
- Generate an initial answer (or check the one given with --answer)
- Classify the query intent
- Extract atomic claims and retrieve evidence for each
- Verify every claim and rewrite the answer from the verdicts
- Compare both answers for hallucinations and score the result

The Markdown report goes to stdout unless --json or --md is given.

Example:
  rectify query "Who created Python?"
  rectify query "Who created Python?" --answer "James Gosling created Python in 1995."
  rectify query "Compare Python and Go" --json report.json --md report.md
  rectify query -i`,
	Args: func(cmd *cobra.Command, args []string) error {
		if interactive {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryAnswer, "answer", "", "check this answer instead of generating one")
	queryCmd.Flags().StringVar(&queryContext, "context", "", "background passed to answer generation")
	queryCmd.Flags().StringVar(&queryJSON, "json", "", "write the JSON report to this path (- for stdout)")
	queryCmd.Flags().StringVar(&queryMD, "md", "", "write the Markdown report to this path")
	queryCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read questions from stdin until 'exit'")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	renderer := report.NewRenderer()

	if interactive {
		return interactiveLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(q string) *model.PipelineRun {
			return p.Run(ctx, q, queryContext)
		}, renderer)
	}

	var run *model.PipelineRun
	if queryAnswer != "" {
		run = p.RunWithAnswer(ctx, args[0], queryAnswer, queryContext)
	} else {
		run = p.Run(ctx, args[0], queryContext)
	}

	if err := writeRun(cmd.OutOrStdout(), cmd.ErrOrStderr(), renderer, run, queryJSON, queryMD); err != nil {
		return err
	}
	if !run.Success {
		return fmt.Errorf("run failed at %s: %s", run.FailedStage, run.Error)
	}
	return nil
}

// writeRun renders run to the requested destinations, Markdown on out
// when none is given
func writeRun(out, errOut io.Writer, r *report.Renderer, run *model.PipelineRun, jsonPath, mdPath string) error {
	if jsonPath == "" && mdPath == "" {
		return r.WriteMarkdown(out, run)
	}

	if jsonPath == "-" {
		if err := r.WriteJSON(out, run); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
	} else if jsonPath != "" {
		if err := r.RenderJSON(run, jsonPath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(errOut, "✓ Wrote JSON report: %s\n", jsonPath)
	}

	if mdPath != "" {
		if err := r.RenderMarkdown(run, mdPath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(errOut, "✓ Wrote Markdown report: %s\n", mdPath)
	}
	return nil
}

// interactiveLoop answers one question per input line until EOF, "exit"
// or "quit"
func interactiveLoop(ctx context.Context, in io.Reader, out, prompt io.Writer, run func(string) *model.PipelineRun, r *report.Renderer) error {
	fmt.Fprintln(prompt, "rectify interactive mode. Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(prompt, "\n? ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "q":
			return nil
		}

		result := run(line)
		if err := r.WriteMarkdown(out, result); err != nil {
			return err
		}
	}
	return scanner.Err()
}

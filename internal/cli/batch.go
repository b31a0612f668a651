package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/report"
)

var (
	concurrency  int
	outputDir    string
	exportFormat string
	batchContext string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Process multiple queries from a file",
	Long: `Batch runs every query of a file through the pipeline:
- .txt: one query per line, # starts a comment
- .json: array of strings or of objects with a "query" field
- .csv: a "query" column, else the first column

Results keep input order. A summary with success rate, durations, failed
stages and recommendations is printed and exported with the results.

Example:
  rectify batch queries.txt
  rectify batch queries.json --concurrency 4 --export csv
  rectify batch queries.csv --output-dir ./reports --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent queries (default: batch.concurrency)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./rectify-reports", "output directory for exported results")
	batchCmd.Flags().StringVar(&exportFormat, "export", "json", "export format: json, csv")
	batchCmd.Flags().StringVar(&batchContext, "context", "", "background passed to every query")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	format := strings.ToLower(exportFormat)
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported export format %q (supported: json, csv)", exportFormat)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if concurrency > 0 {
		cfg.Batch.Concurrency = concurrency
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "  rectify batch processing\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "  Input file:   %s\n", file)
	fmt.Fprintf(errOut, "  Workers:      %d\n", cfg.Batch.Concurrency)
	fmt.Fprintf(errOut, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(errOut, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(errOut, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(errOut, "\n")

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	processor := p.NewBatchProcessor()
	var mu sync.Mutex
	processor.OnProgress(func(done, total int, run *model.PipelineRun) {
		mu.Lock()
		defer mu.Unlock()
		printProgress(errOut, done, total, run)
	})

	runs, err := processor.ProcessFile(ctx, file, batchContext)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := report.NewRenderer()
	path := filepath.Join(outputDir, fmt.Sprintf("batch_%s.%s", time.Now().Format("20060102_150405"), format))
	switch format {
	case "csv":
		err = renderer.RenderBatchCSV(runs, path)
	default:
		err = renderer.RenderBatchJSON(runs, path)
	}
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	printSummary(errOut, report.Summarize(runs, time.Now()), path)
	return nil
}

func printProgress(w io.Writer, done, total int, run *model.PipelineRun) {
	if run.Success {
		fmt.Fprintf(w, "[%d/%d] ✓ %s (%s)\n", done, total, truncateQuery(run.Query), run.Duration().Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "[%d/%d] ✗ %s: %s\n", done, total, truncateQuery(run.Query), run.Error)
}

func printSummary(w io.Writer, s report.Summary, path string) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Batch Complete\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Total:           %d queries\n", s.TotalQueries)
	fmt.Fprintf(w, "  Success:         %d (%.1f%%)\n", s.Successful, s.SuccessRate)
	fmt.Fprintf(w, "  Failures:        %d\n", s.Failed)
	fmt.Fprintf(w, "  Avg duration:    %s\n", s.AverageDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Avg quality:     %.2f\n", s.AverageQuality)
	fmt.Fprintf(w, "  Hallucinations:  %d\n", s.Hallucinations)
	for stage, n := range s.FailedStages {
		fmt.Fprintf(w, "  Failed at %s: %d\n", stage, n)
	}
	for _, rec := range s.Recommendations {
		fmt.Fprintf(w, "  → %s\n", rec)
	}
	fmt.Fprintf(w, "  Output:          %s\n", path)
	fmt.Fprintf(w, "\n")
}

func truncateQuery(q string) string {
	r := []rune(q)
	if len(r) <= 60 {
		return q
	}
	return string(r[:57]) + "..."
}

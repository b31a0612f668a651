package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/authority"
	"github.com/ppiankov/rectify/internal/ingest"
	"github.com/ppiankov/rectify/internal/jsonx"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/store"
	"github.com/ppiankov/rectify/internal/worker"
)

var (
	kbSource      string
	kbWorkers     int
	kbUserAgent   string
	kbFetchTO     time.Duration
	kbMaxBytes    int64
	kbNoRobots    bool
	kbSearchLimit int
	kbThreshold   float64
)

// kbCmd groups the knowledge base commands
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base used as evidence",
	Long: `Manage the documents rectify verifies claims against.

Documents are split into chunks (retrieval.chunk_size / chunk_overlap),
embedded and stored in the configured vector_db backend. Web sources are
tagged with their authority tier (primary, secondary, tertiary).`,
}

var kbAddCmd = &cobra.Command{
	Use:   "add <text>...",
	Short: "Add text passages to the knowledge base",
	Example: `  rectify kb add "Python was created by Guido van Rossum." --source https://www.python.org/
  echo "some passage" | rectify kb add -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		texts := args
		if len(args) == 1 && args[0] == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			texts = []string{string(data)}
		}

		var metas []map[string]any
		if kbSource != "" {
			for range texts {
				metas = append(metas, map[string]any{store.MetaSource: kbSource})
			}
		}

		return withIngester(cmd, func(ing *ingest.Ingester) (ingest.Stats, error) {
			return ing.AddTexts(cmd.Context(), texts, metas)
		})
	},
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest <path-or-url>...",
	Short: "Load files, directories or web pages into the knowledge base",
	Long: `Ingest loads .txt, .md, .html and .json files (directories are walked
recursively) and fetches http(s) URLs. Fetches honour robots.txt and are
rate limited per host.`,
	Example: `  rectify kb ingest ./docs
  rectify kb ingest notes.md https://en.wikipedia.org/wiki/Python_(programming_language)`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, paths := splitSources(args)
		return withIngester(cmd, func(ing *ingest.Ingester) (ingest.Stats, error) {
			var total ingest.Stats
			for _, p := range paths {
				stats, err := ingestPath(cmd, ing, p)
				total = mergeStats(total, stats)
				if err != nil {
					return total, err
				}
			}
			if len(urls) > 0 {
				stats, err := ing.IngestURLs(cmd.Context(), urls)
				total = mergeStats(total, stats)
				if err != nil {
					return total, err
				}
			}
			return total, nil
		})
	},
}

var kbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in sample documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngester(cmd, func(ing *ingest.Ingester) (ingest.Stats, error) {
			return ing.Seed(cmd.Context())
		})
	},
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		n, err := st.Count(cmd.Context())
		if err != nil {
			return fmt.Errorf("count documents: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Backend:     %s\n", st.Backend())
		fmt.Fprintf(out, "Collection:  %s\n", cfg.VectorDB.CollectionName)
		fmt.Fprintf(out, "Embeddings:  %s\n", cfg.VectorDB.EmbeddingModel)
		fmt.Fprintf(out, "Documents:   %d\n", n)
		return nil
	},
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		threshold := cfg.Retrieval.SimilarityThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = kbThreshold
		}
		hits, err := st.Search(cmd.Context(), args[0], kbSearchLimit, threshold)
		if err != nil {
			return err
		}
		printHits(cmd.OutOrStdout(), hits)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbAddCmd, kbIngestCmd, kbSeedCmd, kbStatsCmd, kbSearchCmd)

	kbAddCmd.Flags().StringVar(&kbSource, "source", "", "source tag stored with every passage")

	kbIngestCmd.Flags().IntVar(&kbWorkers, "workers", 4, "concurrent page fetches")
	kbIngestCmd.Flags().StringVar(&kbUserAgent, "ua", ingest.DefaultUserAgent, "HTTP User-Agent")
	kbIngestCmd.Flags().DurationVar(&kbFetchTO, "fetch-timeout", 30*time.Second, "timeout per page fetch")
	kbIngestCmd.Flags().Int64Var(&kbMaxBytes, "max-bytes", 2_000_000, "max response bytes to read")
	kbIngestCmd.Flags().BoolVar(&kbNoRobots, "ignore-robots", false, "do not check robots.txt")

	kbSearchCmd.Flags().IntVar(&kbSearchLimit, "limit", 5, "max results")
	kbSearchCmd.Flags().Float64Var(&kbThreshold, "threshold", 0, "minimum similarity (default: retrieval.similarity_threshold)")
}

// withIngester opens the store, runs fn and prints its stats
func withIngester(cmd *cobra.Command, fn func(*ingest.Ingester) (ingest.Stats, error)) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	stats, err := fn(newIngester(st, cfg, logger))
	printStats(cmd.OutOrStdout(), stats)
	return err
}

// newIngester wires authority tagging and a polite fetcher
func newIngester(st store.Store, cfg *model.Config, logger *zap.Logger) *ingest.Ingester {
	opts := []ingest.FetcherOption{ingest.WithLimiter(worker.NewLimiter(1, 2))}
	if !kbNoRobots {
		opts = append(opts, ingest.WithRobots(ingest.NewRobotsChecker(kbUserAgent, &http.Client{Timeout: 10 * time.Second})))
	}
	fetcher := ingest.NewFetcher(kbFetchTO, kbUserAgent, kbMaxBytes, opts...)

	workers := kbWorkers
	if workers <= 0 {
		workers = 4
	}
	return ingest.New(st, cfg.Retrieval,
		ingest.WithClassifier(authority.NewClassifier(&cfg.Authority)),
		ingest.WithFetcher(fetcher),
		ingest.WithWorkers(workers),
		ingest.WithLogger(logger.Named("ingest")))
}

func ingestPath(cmd *cobra.Command, ing *ingest.Ingester, path string) (ingest.Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ingest.Stats{}, err
	}
	if info.IsDir() {
		return ing.IngestDir(cmd.Context(), path)
	}
	docs, err := ingest.LoadFile(path, path)
	if err != nil {
		return ingest.Stats{}, err
	}
	return ing.Add(cmd.Context(), docs)
}

// splitSources separates http(s) URLs from filesystem paths
func splitSources(args []string) (urls, paths []string) {
	for _, a := range args {
		lower := strings.ToLower(a)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			urls = append(urls, a)
		} else {
			paths = append(paths, a)
		}
	}
	return urls, paths
}

func mergeStats(a, b ingest.Stats) ingest.Stats {
	a.Documents += b.Documents
	a.Chunks += b.Chunks
	a.IDs = append(a.IDs, b.IDs...)
	a.Skipped = append(a.Skipped, b.Skipped...)
	return a
}

func printStats(w io.Writer, s ingest.Stats) {
	fmt.Fprintf(w, "✓ Added %d documents (%d chunks)\n", s.Documents, s.Chunks)
	for _, skip := range s.Skipped {
		fmt.Fprintf(w, "✗ skipped %s\n", skip)
	}
}

func printHits(w io.Writer, hits []model.EvidenceSnippet) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No passages found above the similarity threshold.")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "[%d] %.3f  %s", h.Rank, h.Similarity, h.Source)
		if h.Authority != model.TierUnknown {
			fmt.Fprintf(w, "  (%s)", h.Authority)
		}
		fmt.Fprintf(w, "\n    %s\n", jsonx.Truncate(strings.Join(strings.Fields(h.Text), " "), 200))
	}
}

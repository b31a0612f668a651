package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/api"
	"github.com/ppiankov/rectify/internal/mcptools"
)

var (
	serveAddr     string
	serveMaxBatch int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP correction service",
	Long: `Serve exposes the pipeline over HTTP:

  GET  /health            liveness and component status
  GET  /system/status     detailed component status
  GET  /metrics           Prometheus metrics
  POST /correct           {"query": "...", "original_answer": "...", "context": "..."}
  POST /correct/batch     {"requests": [...], "context": "..."}
  POST /knowledge/add     {"documents": [...], "metadatas": [...]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := api.NewServer(p, newIngester(p.Store(), cfg, logger),
			api.WithLogger(logger.Named("api")),
			api.WithVersion(Version),
			api.WithMaxBatch(serveMaxBatch))

		logger.Info("starting server", zap.String("addr", addr))
		return srv.Run(ctx, addr)
	},
}

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server over stdio",
	Long: `Run rectify as a Model Context Protocol server on stdin/stdout.

Tools:
  correct_answer     answer or check a question against the knowledge base
  knowledge_search   search the knowledge base directly

Logs go to stderr; stdout carries the protocol only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		p, err := buildPipeline(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		s := mcptools.NewServer(Version, p, p.Store(), cfg.Retrieval.SimilarityThreshold)
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().IntVar(&serveMaxBatch, "max-batch", 20, "max requests per /correct/batch call")
}

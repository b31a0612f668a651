// Package mcptools exposes the correction pipeline and the knowledge base
// as MCP tools.
//
// Each tool follows the same shape:
// - a struct holding its dependency, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ppiankov/rectify/internal/model"
)

// Runner runs the correction pipeline
type Runner interface {
	Run(ctx context.Context, query, queryContext string) *model.PipelineRun
	RunWithAnswer(ctx context.Context, query, answer, queryContext string) *model.PipelineRun
}

// Searcher queries the knowledge base
type Searcher interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error)
}

// NewServer builds an MCP server with every rectify tool registered
func NewServer(version string, runner Runner, searcher Searcher, threshold float64) *server.MCPServer {
	s := server.NewMCPServer(
		"rectify",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	correct := NewCorrectTool(runner)
	s.AddTool(correct.Definition(), correct.Handle)

	search := NewSearchTool(searcher, threshold)
	s.AddTool(search.Definition(), search.Handle)

	return s
}

const instructions = "rectify checks answers for hallucinations. Use correct_answer to answer a " +
	"question (or check an answer you already have) against the knowledge base; it returns " +
	"per-claim verdicts and a corrected answer. Use knowledge_search to look up the evidence directly."

// intArg extracts an integer argument; JSON numbers arrive as float64
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

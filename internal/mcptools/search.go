package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ppiankov/rectify/internal/jsonx"
)

const maxSearchResults = 20

// SearchTool handles the knowledge_search MCP tool
type SearchTool struct {
	searcher  Searcher
	threshold float64
}

// NewSearchTool creates a SearchTool. threshold is the default minimum similarity.
func NewSearchTool(searcher Searcher, threshold float64) *SearchTool {
	return &SearchTool{searcher: searcher, threshold: threshold}
}

// Definition returns the MCP tool definition for knowledge_search
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("knowledge_search",
		mcp.WithDescription("Search the knowledge base for passages similar to a query."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, natural language or keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5, max: 20)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity in [0,1] (default: configured retrieval threshold)"),
		),
	)
}

// Handle processes the knowledge_search tool call
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	limit := intArg(req, "limit", 5)
	if limit <= 0 {
		limit = 5
	}
	if limit > maxSearchResults {
		limit = maxSearchResults
	}

	threshold := floatArg(req, "threshold", t.threshold)
	if threshold < 0 || threshold > 1 {
		return mcp.NewToolResultError("'threshold' must be within [0,1]"), nil
	}

	hits, err := t.searcher.Search(ctx, query, limit, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No passages found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passages:\n\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "[%d] similarity %.3f | source: %s | authority: %s\n    %s\n\n",
			h.Rank, h.Similarity, h.Source, h.Authority, jsonx.Truncate(h.Text, 300))
	}
	return mcp.NewToolResultText(b.String()), nil
}

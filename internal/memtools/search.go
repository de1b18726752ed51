package memtools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/search"
)

// SearchTool handles the mem_search MCP tool.
type SearchTool struct {
	engine   *search.Engine
	embedder embedding.Provider // optional
}

// NewSearchTool creates a SearchTool. embedder may be nil; search then
// runs on the full-text signals only.
func NewSearchTool(engine *search.Engine, embedder embedding.Provider) *SearchTool {
	return &SearchTool{engine: engine, embedder: embedder}
}

// Definition returns the MCP tool definition for mem_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_search",
		mcp.WithDescription(
			"Search persistent memory across all sessions: observations, saved knowledge, "+
				"sessions and conversations, ranked by keyword match, semantic similarity, "+
				"recency and project affinity.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithString("type",
			mcp.Description("Filter by kind: observation, knowledge, session, conversation, or all (default: all)"),
		),
		mcp.WithString("project",
			mcp.Description("Boost and filter by project"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags; results must match at least one"),
		),
		mcp.WithString("from_date",
			mcp.Description("Only results on or after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("to_date",
			mcp.Description("Only results on or before this date (YYYY-MM-DD)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

// Handle processes the mem_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	kind := req.GetString("type", search.TypeAll)
	if kind != search.TypeAll {
		valid := false
		for _, k := range memory.Kinds() {
			if kind == k {
				valid = true
			}
		}
		if !valid {
			return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", kind)), nil
		}
	}

	var queryVec []float32
	if t.embedder != nil {
		vec, err := t.embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("WARNING: query embedding failed: %v", err)
		} else {
			queryVec = vec
		}
	}

	results, err := t.engine.Search(query, search.Options{
		Type:     kind,
		Project:  req.GetString("project", ""),
		Tags:     stringListArg(req, "tags"),
		FromDate: dateArg(req, "from_date"),
		ToDate:   dateArg(req, "to_date"),
		Limit:    intArg(req, "limit", 20),
	}, queryVec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s %s (score %.2f)\n", i+1, r.Kind, r.ID, r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", r.Snippet)
		}
		meta := r.Project
		if len(r.Tags) > 0 {
			if meta != "" {
				meta += " | "
			}
			meta += "tags: " + strings.Join(r.Tags, ", ")
		}
		if meta != "" {
			fmt.Fprintf(&b, "    %s\n", meta)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

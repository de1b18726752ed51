package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
)

// RelateTool handles the mem_relate MCP tool.
type RelateTool struct {
	graph *graph.Graph
}

// NewRelateTool creates a RelateTool.
func NewRelateTool(g *graph.Graph) *RelateTool {
	return &RelateTool{graph: g}
}

// Definition returns the MCP tool definition for mem_relate.
func (t *RelateTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_relate",
		mcp.WithDescription(
			"Create an explicit relationship edge between two knowledge items. "+
				"The edge is directed: from relates-to to.",
		),
		mcp.WithString("from_id",
			mcp.Required(),
			mcp.Description("Source knowledge item"),
		),
		mcp.WithString("to_id",
			mcp.Required(),
			mcp.Description("Target knowledge item"),
		),
		mcp.WithString("relationship",
			mcp.Required(),
			mcp.Description("One of: derives_from, leads_to, supports, contradicts, refines, supersedes"),
		),
		mcp.WithNumber("strength",
			mcp.Description("Edge strength 0-1 (default: 1.0)"),
		),
	)
}

// Handle processes the mem_relate tool call.
func (t *RelateTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID := strings.TrimSpace(req.GetString("from_id", ""))
	toID := strings.TrimSpace(req.GetString("to_id", ""))
	rel := strings.TrimSpace(req.GetString("relationship", ""))
	if fromID == "" || toID == "" || rel == "" {
		return mcp.NewToolResultError("'from_id', 'to_id' and 'relationship' are required"), nil
	}
	if !memory.ValidRelationship(rel) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown relationship %q", rel)), nil
	}

	edge, err := t.graph.CreateEdge(fromID, toID, rel, floatArg(req, "strength", 1.0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("edge creation failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Created edge %s: %s %s %s (strength %.2f).",
		edge.ID, fromID, rel, toID, edge.Strength,
	)), nil
}

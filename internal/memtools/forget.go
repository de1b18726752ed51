package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/memory"
)

// ForgetTool handles the mem_forget MCP tool.
type ForgetTool struct {
	store *memory.Store
}

// NewForgetTool creates a ForgetTool.
func NewForgetTool(store *memory.Store) *ForgetTool {
	return &ForgetTool{store: store}
}

// Definition returns the MCP tool definition for mem_forget.
func (t *ForgetTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_forget",
		mcp.WithDescription(
			"Permanently delete a knowledge item. All graph edges touching it are "+
				"removed as well.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("ID of the knowledge item to delete"),
		),
	)
}

// Handle processes the mem_forget tool call.
func (t *ForgetTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	item, err := t.store.GetKnowledge(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if item == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no knowledge item with id %q", id)), nil
	}

	edges, err := t.store.DeleteKnowledge(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Forgot %s %s (%d edge(s) removed).", item.Type, id, edges,
	)), nil
}

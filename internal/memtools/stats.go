package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/memory"
)

// StatsTool handles the mem_stats MCP tool.
type StatsTool struct {
	store *memory.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(store *memory.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for mem_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_stats",
		mcp.WithDescription("Show how much is stored in persistent memory."),
	)
}

// Handle processes the mem_stats tool call.
func (t *StatsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.store.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString("Memory statistics:\n\n")
	fmt.Fprintf(&b, "  sessions:      %d\n", st.Sessions)
	fmt.Fprintf(&b, "  conversations: %d\n", st.Conversations)
	fmt.Fprintf(&b, "  observations:  %d\n", st.Observations)
	fmt.Fprintf(&b, "  knowledge:     %d\n", st.Knowledge)
	fmt.Fprintf(&b, "  edges:         %d\n", st.Edges)
	fmt.Fprintf(&b, "  embeddings:    %d\n", st.Embeddings)
	return mcp.NewToolResultText(b.String()), nil
}

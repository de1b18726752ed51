package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
)

// GraphTool handles the mem_graph MCP tool: breadth-first traversal from
// a knowledge item.
type GraphTool struct {
	graph *graph.Graph
}

// NewGraphTool creates a GraphTool.
func NewGraphTool(g *graph.Graph) *GraphTool {
	return &GraphTool{graph: g}
}

// Definition returns the MCP tool definition for mem_graph.
func (t *GraphTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_graph",
		mcp.WithDescription(
			"Walk the knowledge graph breadth-first from an item, following all "+
				"relationship edges up to a depth limit.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Knowledge item to start from"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Traversal depth limit (default: 5)"),
		),
	)
}

// Handle processes the mem_graph tool call.
func (t *GraphTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	tr, err := t.graph.Traverse(id, intArg(req, "max_depth", -1))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("traversal failed: %v", err)), nil
	}
	if tr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no knowledge item with id %q", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Graph from %s: %d node(s)", tr.Root, len(tr.Nodes))
	if tr.MaxDepthReached {
		b.WriteString(" (depth limit reached)")
	}
	b.WriteString("\n\n")
	for _, n := range tr.Nodes {
		fmt.Fprintf(&b, "%s[depth %d] %s %s: %s\n",
			strings.Repeat("  ", n.Depth), n.Depth,
			n.Knowledge.Type, n.Knowledge.ID,
			memory.Truncate(n.Knowledge.Content, 120),
		)
		for _, e := range n.Edges {
			if e.FromID != n.Knowledge.ID {
				continue
			}
			fmt.Fprintf(&b, "%s  -> %s %s (%.2f)\n",
				strings.Repeat("  ", n.Depth), e.Relationship, e.ToID, e.Strength)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ConnectedTool handles the mem_connected MCP tool: depth-1 neighbors.
type ConnectedTool struct {
	graph *graph.Graph
}

// NewConnectedTool creates a ConnectedTool.
func NewConnectedTool(g *graph.Graph) *ConnectedTool {
	return &ConnectedTool{graph: g}
}

// Definition returns the MCP tool definition for mem_connected.
func (t *ConnectedTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_connected",
		mcp.WithDescription("List the knowledge items directly connected to an item."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Knowledge item whose neighbors to list"),
		),
	)
}

// Handle processes the mem_connected tool call.
func (t *ConnectedTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	neighbors, err := t.graph.FindConnected(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("neighbor lookup failed: %v", err)), nil
	}
	if neighbors == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no knowledge item with id %q", id)), nil
	}
	if len(neighbors) == 0 {
		return mcp.NewToolResultText("No connected items."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d connected item(s):\n\n", len(neighbors))
	for _, n := range neighbors {
		fmt.Fprintf(&b, "- %s %s: %s\n", n.Type, n.ID, memory.Truncate(n.Content, 120))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// DerivationTool handles the mem_derivation MCP tool: what a discovery
// was built from.
type DerivationTool struct {
	graph *graph.Graph
}

// NewDerivationTool creates a DerivationTool.
func NewDerivationTool(g *graph.Graph) *DerivationTool {
	return &DerivationTool{graph: g}
}

// Definition returns the MCP tool definition for mem_derivation.
func (t *DerivationTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_derivation",
		mcp.WithDescription(
			"Reconstruct what a discovery was derived from by following its "+
				"derives_from edges back to the sources.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Discovery (or any knowledge item) to trace"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("How many derivation hops to follow (default: 5)"),
		),
	)
}

// Handle processes the mem_derivation tool call.
func (t *DerivationTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	chain, err := t.graph.DerivationChain(id, intArg(req, "max_depth", -1))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("derivation lookup failed: %v", err)), nil
	}
	if chain == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no knowledge item with id %q", id)), nil
	}
	if len(chain) == 0 {
		return mcp.NewToolResultText("No derivation sources recorded."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Derived from %d item(s):\n\n", len(chain))
	for i, item := range chain {
		fmt.Fprintf(&b, "[%d] %s %s: %s\n", i+1, item.Type, item.ID, memory.Truncate(item.Content, 120))
	}
	return mcp.NewToolResultText(b.String()), nil
}

package memtools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
)

// SaveTool handles the mem_save MCP tool.
type SaveTool struct {
	store     *memory.Store
	discovery *graph.Discovery
	embedder  embedding.Provider // optional
}

// NewSaveTool creates a SaveTool. embedder may be nil.
func NewSaveTool(store *memory.Store, discovery *graph.Discovery, embedder embedding.Provider) *SaveTool {
	return &SaveTool{store: store, discovery: discovery, embedder: embedder}
}

// Definition returns the MCP tool definition for mem_save.
func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_save",
		mcp.WithDescription(
			"Save a piece of durable knowledge to persistent memory: a fact, decision, "+
				"preference, pattern, issue, context note, or discovery. Provenance edges to "+
				"declared sources and related items are created automatically.",
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The knowledge to remember"),
		),
		mcp.WithString("type",
			mcp.Description("One of: fact, decision, preference, pattern, issue, context, discovery (default: fact)"),
		),
		mcp.WithString("project",
			mcp.Description("Project this knowledge belongs to"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags for later filtering"),
		),
		mcp.WithString("source_knowledge_ids",
			mcp.Description("Comma-separated IDs of knowledge items this derives from"),
		),
		mcp.WithString("source_observation_ids",
			mcp.Description("Comma-separated IDs of observations this was distilled from"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Confidence 0-1 (default: 1.0)"),
		),
	)
}

// Handle processes the mem_save tool call.
func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := strings.TrimSpace(req.GetString("content", ""))
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	typ := req.GetString("type", memory.TypeFact)
	if !memory.ValidKnowledgeType(typ) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", typ)), nil
	}

	item, err := t.store.SaveKnowledge(memory.SaveKnowledgeParams{
		Type:                 typ,
		Content:              content,
		SourceKnowledgeIDs:   stringListArg(req, "source_knowledge_ids"),
		SourceObservationIDs: stringListArg(req, "source_observation_ids"),
		Project:              req.GetString("project", ""),
		Tags:                 stringListArg(req, "tags"),
		Confidence:           floatArg(req, "confidence", 1.0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}

	if t.embedder != nil {
		if vec, err := t.embedder.Embed(ctx, item.Content); err != nil {
			log.Printf("WARNING: embedding for %s failed: %v", item.ID, err)
		} else if err := t.store.PutEmbedding(memory.KindKnowledge, item.ID, vec); err != nil {
			log.Printf("WARNING: storing embedding for %s failed: %v", item.ID, err)
		}
	}

	if err := t.discovery.OnKnowledgeCreated(ctx, item); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("saved %s, but source linking failed: %v", item.ID, err)), nil
	}

	edges, err := t.store.CountEdges(item.ID)
	if err != nil {
		edges = 0
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Saved %s %s (%d edge(s) created).", typ, item.ID, edges,
	)), nil
}

// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete record store,
// search engine, knowledge graph, detector, and tuner, and injects them
// into the tools that depend on abstractions. No business logic lives
// here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/memtools"
	"github.com/recallhq/recall/internal/search"
	"github.com/recallhq/recall/internal/thresholds"
	"github.com/recallhq/recall/internal/topicshift"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Options configures the server's collaborators. The zero value is valid:
// the store opens at its default location, and the optional embedding
// provider and reasoner are simply absent — search degrades to
// full-text-only and auto-discovery skips its synthesis phase.
type Options struct {
	Memory memory.Config

	// Embedder produces vectors for saved knowledge and search queries.
	// Nil disables the vector half of hybrid search.
	Embedder embedding.Provider

	// Reasoner is the collaborator the discovery engine consults when
	// synthesizing new knowledge from neighborhoods. Nil disables it.
	Reasoner graph.Reasoner
}

// New creates and configures the MCP server with all memory tools
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the record store's database
// connection and must be called on shutdown (typically via defer).
// It is always non-nil and safe to call even when New returns an error.
func New(opts Options) (*server.MCPServer, func(), error) {
	if opts.Memory == (memory.Config{}) {
		opts.Memory = memory.DefaultConfig()
	}

	store, err := memory.New(opts.Memory)
	if err != nil {
		return nil, noop, fmt.Errorf("opening record store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Printf("WARNING: record store close: %v", err)
		}
	}

	if opts.Embedder == nil {
		log.Printf("WARNING: no embedding provider configured: search runs full-text only")
	}
	if opts.Reasoner == nil {
		log.Printf("WARNING: no reasoner configured: knowledge synthesis disabled")
	}

	engine := search.New(store, store, search.DefaultConfig())
	g := graph.New(store, graph.DefaultConfig())
	discovery := graph.NewDiscovery(g, engine, opts.Reasoner, opts.Embedder)
	tuner := thresholds.New(store)
	detector := topicshift.New(topicshift.DefaultConfig())

	s := server.NewMCPServer(
		"recall",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Capture & save ---

	observeTool := memtools.NewObserveTool(store)
	s.AddTool(observeTool.Definition(), observeTool.Handle)

	saveTool := memtools.NewSaveTool(store, discovery, opts.Embedder)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	// --- Retrieval ---

	searchTool := memtools.NewSearchTool(engine, opts.Embedder)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	// --- Knowledge graph ---

	relateTool := memtools.NewRelateTool(g)
	s.AddTool(relateTool.Definition(), relateTool.Handle)

	graphTool := memtools.NewGraphTool(g)
	s.AddTool(graphTool.Definition(), graphTool.Handle)

	connectedTool := memtools.NewConnectedTool(g)
	s.AddTool(connectedTool.Definition(), connectedTool.Handle)

	derivationTool := memtools.NewDerivationTool(g)
	s.AddTool(derivationTool.Definition(), derivationTool.Handle)

	// --- Management ---

	forgetTool := memtools.NewForgetTool(store)
	s.AddTool(forgetTool.Definition(), forgetTool.Handle)

	// --- Topic segmentation ---

	topicShiftTool := memtools.NewTopicShiftTool(store, detector, tuner)
	s.AddTool(topicShiftTool.Definition(), topicShiftTool.Handle)

	topicFeedbackTool := memtools.NewTopicFeedbackTool(tuner)
	s.AddTool(topicFeedbackTool.Definition(), topicFeedbackTool.Handle)

	// --- Statistics ---

	statsTool := memtools.NewStatsTool(store)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when the store never opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use recall effectively.
func serverInstructions() string {
	return `You have access to recall, a persistent memory MCP server.

Memory survives between conversations — use it to build project knowledge
over time.

## When to Save (call mem_save PROACTIVELY after each of these)
- Architectural decisions or tradeoffs made
- Bug fixes: what was wrong, why, how it was fixed
- New patterns or conventions established
- Important discoveries, gotchas, or edge cases
- User preferences about style, tooling, or workflow

Use the type parameter: fact, decision, preference, pattern, issue,
context, discovery. Pass source_knowledge_ids when the new item builds on
earlier ones — recall records the derivation so it can be traced later
with mem_derivation.

## When to Search (call mem_search)
- At the start of a new session to recover context
- Before making architectural decisions (check if prior decisions exist)
- When encountering familiar errors or patterns
- When the user references something from a previous session

Results are ranked by a blend of text relevance, semantic similarity,
recency, and project affinity. Filter by type, project, tags, or date
range to narrow them.

## Observations (mem_observe)
Record each significant tool use against a session so topic-shift
detection has context to work with: the tool name, a one-line input
summary, a one-line output summary, and the files touched.

## Knowledge Graph
- mem_relate(from_id, to_id, relationship) — create a typed edge.
  Relationships: derives_from, leads_to, supports, contradicts, refines,
  supersedes.
- mem_graph(id) — walk everything connected to an item, breadth-first.
- mem_connected(id) — just the direct neighbors.
- mem_derivation(id) — what a discovery was derived from.

Saving knowledge also links it automatically: declared sources get
derives_from edges, and strongly related items found by search get
inferred edges.

## Topic Shifts
- mem_topic_shift(activity, session_id, project) — score whether a new
  prompt starts a different topic than the recent session context. The
  result maps to an action: ignore (continue), ask (suggest
  segmentation), or trust (segment automatically).
- mem_topic_feedback(project, event) — report the outcome so the
  per-project thresholds adapt. Events: auto_stash, false_positive,
  suggestion_shown, suggestion_accepted. ALWAYS report false_positive
  when the user says a segmentation was wrong.

## Cleanup
- mem_forget(id) — delete a knowledge item; its edges go with it.
- mem_stats — how much is stored.`
}

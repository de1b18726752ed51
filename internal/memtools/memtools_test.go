package memtools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/search"
	"github.com/recallhq/recall/internal/thresholds"
	"github.com/recallhq/recall/internal/topicshift"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type testDeps struct {
	store     *memory.Store
	engine    *search.Engine
	graph     *graph.Graph
	discovery *graph.Discovery
	tuner     *thresholds.Tuner
	detector  *topicshift.Detector
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	store, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := search.New(store, store, search.DefaultConfig())
	g := graph.New(store, graph.DefaultConfig())
	return &testDeps{
		store:     store,
		engine:    engine,
		graph:     g,
		discovery: graph.NewDiscovery(g, engine, nil, nil),
		tuner:     thresholds.New(store),
		detector:  topicshift.New(topicshift.DefaultConfig()),
	}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustToolError(t *testing.T, r *mcp.CallToolResult, err error, wantSubstr string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error containing %q, got success: %s", wantSubstr, resultText(r))
	}
	if wantSubstr != "" && !strings.Contains(resultText(r), wantSubstr) {
		t.Errorf("error text %q does not contain %q", resultText(r), wantSubstr)
	}
}

func saveKnowledge(t *testing.T, d *testDeps, args map[string]interface{}) string {
	t.Helper()
	tool := NewSaveTool(d.store, d.discovery, nil)
	r, err := tool.Handle(context.Background(), makeReq(args))
	mustNotError(t, r, err)

	// the result text carries the generated ID; find it in the store instead
	hits, err := d.store.SearchText(memory.KindKnowledge, `"`+args["content"].(string)+`"`, memory.TextFilter{})
	if err != nil || len(hits) == 0 {
		t.Fatalf("saved item not searchable: %v (%d hits)", err, len(hits))
	}
	return hits[0].ID
}

// ─── SaveTool ────────────────────────────────────────────────────────────────

func TestSaveTool_Definition(t *testing.T) {
	d := newTestDeps(t)
	def := NewSaveTool(d.store, d.discovery, nil).Definition()

	if def.Name != "mem_save" {
		t.Errorf("tool name = %q, want mem_save", def.Name)
	}
	if _, ok := def.InputSchema.Properties["content"]; !ok {
		t.Error("missing 'content' parameter")
	}
	found := false
	for _, r := range def.InputSchema.Required {
		if r == "content" {
			found = true
		}
	}
	if !found {
		t.Error("'content' should be required")
	}
}

func TestSaveTool_Basic(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveTool(d.store, d.discovery, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"content": "migrations run before the server accepts connections",
		"type":    "decision",
		"project": "recall",
		"tags":    "startup, sqlite",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Saved decision") {
		t.Errorf("result = %q", resultText(r))
	}

	st, err := d.store.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.Knowledge != 1 {
		t.Errorf("knowledge count = %d, want 1", st.Knowledge)
	}
}

func TestSaveTool_Validation(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveTool(d.store, d.discovery, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'content' is required")

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"content": "x",
		"type":    "opinion",
	}))
	mustToolError(t, r, err, "unknown type")
}

func TestSaveTool_SourceEdges(t *testing.T) {
	d := newTestDeps(t)
	srcID := saveKnowledge(t, d, map[string]interface{}{
		"content": "authentication uses rotating tokens",
	})

	tool := NewSaveTool(d.store, d.discovery, nil)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"content":              "token rotation explains the intermittent 401s",
		"type":                 "discovery",
		"source_knowledge_ids": srcID,
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "edge(s) created") {
		t.Errorf("result = %q", resultText(r))
	}

	n, err := d.store.CountEdges(srcID)
	if err != nil {
		t.Fatalf("CountEdges() error = %v", err)
	}
	if n < 1 {
		t.Errorf("edges at source = %d, want >= 1", n)
	}
}

// ─── ObserveTool ─────────────────────────────────────────────────────────────

func TestObserveTool(t *testing.T) {
	d := newTestDeps(t)
	tool := NewObserveTool(d.store)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id":    "sess-1",
		"tool_name":     "Edit",
		"input_summary": "edit cmd/recall/main.go",
		"project":       "recall",
		"files":         "cmd/recall/main.go",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Recorded observation") {
		t.Errorf("result = %q", resultText(r))
	}

	recent, err := d.store.RecentObservations("sess-1", "", 10)
	if err != nil {
		t.Fatalf("RecentObservations() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ToolName != "Edit" {
		t.Errorf("recent = %+v", recent)
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"tool_name": "Edit",
	}))
	mustToolError(t, r, err, "required")
}

// ─── SearchTool ──────────────────────────────────────────────────────────────

func TestSearchTool(t *testing.T) {
	d := newTestDeps(t)
	saveKnowledge(t, d, map[string]interface{}{
		"content": "connection pooling defaults to four workers",
	})

	tool := NewSearchTool(d.engine, nil)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "connection pooling",
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "Found 1 memories") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "connection pooling defaults") {
		t.Errorf("snippet missing from result: %q", text)
	}
}

func TestSearchTool_NoResults(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSearchTool(d.engine, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "nothing matches this",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No memories found") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestSearchTool_Validation(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSearchTool(d.engine, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'query' is required")

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "x",
		"type":  "widget",
	}))
	mustToolError(t, r, err, "unknown type")
}

// ─── ForgetTool ──────────────────────────────────────────────────────────────

func TestForgetTool(t *testing.T) {
	d := newTestDeps(t)
	id := saveKnowledge(t, d, map[string]interface{}{"content": "disposable note"})
	other := saveKnowledge(t, d, map[string]interface{}{"content": "kept note"})
	if _, err := d.graph.CreateEdge(id, other, memory.RelSupports, 1.0); err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}

	tool := NewForgetTool(d.store)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": id}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "1 edge(s) removed") {
		t.Errorf("result = %q", resultText(r))
	}

	gone, err := d.store.GetKnowledge(id)
	if err != nil {
		t.Fatalf("GetKnowledge() error = %v", err)
	}
	if gone != nil {
		t.Error("item still present after forget")
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": id}))
	mustToolError(t, r, err, "no knowledge item")
}

// ─── RelateTool ──────────────────────────────────────────────────────────────

func TestRelateTool(t *testing.T) {
	d := newTestDeps(t)
	a := saveKnowledge(t, d, map[string]interface{}{"content": "item alpha"})
	b := saveKnowledge(t, d, map[string]interface{}{"content": "item beta"})

	tool := NewRelateTool(d.graph)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"from_id":      a,
		"to_id":        b,
		"relationship": "contradicts",
		"strength":     0.7,
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "contradicts") {
		t.Errorf("result = %q", resultText(r))
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"from_id":      a,
		"to_id":        b,
		"relationship": "entangles",
	}))
	mustToolError(t, r, err, "unknown relationship")

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"from_id":      a,
		"to_id":        "ghost",
		"relationship": "supports",
	}))
	mustToolError(t, r, err, "edge creation failed")
}

// ─── Graph tools ─────────────────────────────────────────────────────────────

func TestGraphTool(t *testing.T) {
	d := newTestDeps(t)
	a := saveKnowledge(t, d, map[string]interface{}{"content": "root item"})
	b := saveKnowledge(t, d, map[string]interface{}{"content": "leaf item"})
	if _, err := d.graph.CreateEdge(a, b, memory.RelSupports, 1.0); err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}

	tool := NewGraphTool(d.graph)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": a}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "2 node(s)") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "root item") || !strings.Contains(text, "leaf item") {
		t.Errorf("node contents missing: %q", text)
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": "ghost"}))
	mustToolError(t, r, err, "no knowledge item")
}

func TestConnectedTool(t *testing.T) {
	d := newTestDeps(t)
	a := saveKnowledge(t, d, map[string]interface{}{"content": "hub item"})
	b := saveKnowledge(t, d, map[string]interface{}{"content": "spoke item"})
	if _, err := d.graph.CreateEdge(a, b, memory.RelSupports, 1.0); err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}

	tool := NewConnectedTool(d.graph)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": a}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "spoke item") {
		t.Errorf("result = %q", resultText(r))
	}

	lone := saveKnowledge(t, d, map[string]interface{}{"content": "standalone entry"})
	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": lone}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No connected items") {
		t.Errorf("result = %q", resultText(r))
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": "ghost"}))
	mustToolError(t, r, err, "no knowledge item")
}

func TestDerivationTool(t *testing.T) {
	d := newTestDeps(t)
	src := saveKnowledge(t, d, map[string]interface{}{"content": "underlying evidence"})

	tool := NewSaveTool(d.store, d.discovery, nil)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"content":              "synthesized conclusion",
		"type":                 "discovery",
		"source_knowledge_ids": src,
	}))
	mustNotError(t, r, err)

	hits, err := d.store.SearchText(memory.KindKnowledge, `"synthesized"`, memory.TextFilter{})
	if err != nil || len(hits) != 1 {
		t.Fatalf("discovery lookup: %v (%d hits)", err, len(hits))
	}

	dt := NewDerivationTool(d.graph)
	r, err = dt.Handle(context.Background(), makeReq(map[string]interface{}{"id": hits[0].ID}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "underlying evidence") {
		t.Errorf("result = %q", resultText(r))
	}

	r, err = dt.Handle(context.Background(), makeReq(map[string]interface{}{"id": src}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No derivation sources") {
		t.Errorf("result = %q", resultText(r))
	}
}

// ─── Topic shift tools ───────────────────────────────────────────────────────

func TestTopicShiftTool(t *testing.T) {
	d := newTestDeps(t)
	tool := NewTopicShiftTool(d.store, d.detector, d.tuner)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"activity": "short follow up",
		"project":  "recall",
	}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "Topic shift score") {
		t.Errorf("result = %q", text)
	}
	if !strings.Contains(text, "ignore") {
		t.Errorf("expected ignore action for quiet context, got: %q", text)
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'activity' is required")
}

func TestTopicFeedbackTool(t *testing.T) {
	d := newTestDeps(t)
	tool := NewTopicFeedbackTool(d.tuner)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project": "recall",
		"event":   "auto_stash",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Recorded auto_stash") {
		t.Errorf("result = %q", resultText(r))
	}

	th, err := d.store.GetThresholds("recall")
	if err != nil {
		t.Fatalf("GetThresholds() error = %v", err)
	}
	if th.AutoStashCount != 1 {
		t.Errorf("AutoStashCount = %d, want 1", th.AutoStashCount)
	}

	r, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project": "recall",
		"event":   "celebrated",
	}))
	mustToolError(t, r, err, "unknown event")
}

// ─── StatsTool ───────────────────────────────────────────────────────────────

func TestStatsTool(t *testing.T) {
	d := newTestDeps(t)
	saveKnowledge(t, d, map[string]interface{}{"content": "counted item"})

	tool := NewStatsTool(d.store)
	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, r, err)
	text := resultText(r)
	if !strings.Contains(text, "knowledge:     1") {
		t.Errorf("result = %q", text)
	}
}

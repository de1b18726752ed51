package graph_test

import (
	"testing"

	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/memory"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	cfg := memory.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestGraph(t *testing.T) (*graph.Graph, *memory.Store) {
	t.Helper()
	s := newTestStore(t)
	return graph.New(s, graph.DefaultConfig()), s
}

func saveItem(t *testing.T, s *memory.Store, content string) *memory.KnowledgeItem {
	t.Helper()
	item, err := s.SaveKnowledge(memory.SaveKnowledgeParams{
		Type:       memory.TypeFact,
		Content:    content,
		Confidence: 1.0,
	})
	if err != nil {
		t.Fatalf("SaveKnowledge() error = %v", err)
	}
	return item
}

func mustEdge(t *testing.T, g *graph.Graph, from, to, rel string, strength float64) {
	t.Helper()
	if _, err := g.CreateEdge(from, to, rel, strength); err != nil {
		t.Fatalf("CreateEdge(%s→%s %s) error = %v", from, to, rel, err)
	}
}

func TestCreateEdge(t *testing.T) {
	g, s := newTestGraph(t)
	a := saveItem(t, s, "a")
	b := saveItem(t, s, "b")

	e, err := g.CreateEdge(a.ID, b.ID, memory.RelSupports, 0)
	if err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}
	if e.Strength != 1.0 {
		t.Errorf("default Strength = %v, want 1.0", e.Strength)
	}

	if _, err := g.CreateEdge(a.ID, b.ID, "entangles", 1.0); err == nil {
		t.Error("CreateEdge(unknown relationship) succeeded, want error")
	}

	// duplicates between the same pair are permitted
	if _, err := g.CreateEdge(a.ID, b.ID, memory.RelSupports, 0.5); err != nil {
		t.Errorf("duplicate CreateEdge() error = %v", err)
	}
}

func TestTraverseChain(t *testing.T) {
	g, s := newTestGraph(t)
	a := saveItem(t, s, "a")
	b := saveItem(t, s, "b")
	c := saveItem(t, s, "c")
	mustEdge(t, g, a.ID, b.ID, memory.RelSupports, 1.0)
	mustEdge(t, g, b.ID, c.ID, memory.RelSupports, 1.0)

	tr, err := g.Traverse(a.ID, 5)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if tr == nil {
		t.Fatal("Traverse() = nil for existing root")
	}
	if len(tr.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3", len(tr.Nodes))
	}
	if tr.Nodes[0].Knowledge.ID != a.ID || tr.Nodes[0].Depth != 0 {
		t.Errorf("root node = %s depth %d", tr.Nodes[0].Knowledge.ID, tr.Nodes[0].Depth)
	}
	if tr.Nodes[2].Depth != 2 {
		t.Errorf("deepest node depth = %d, want 2", tr.Nodes[2].Depth)
	}
	if tr.MaxDepthReached {
		t.Error("MaxDepthReached = true for fully explored graph")
	}
}

func TestTraverseDepthZero(t *testing.T) {
	g, s := newTestGraph(t)
	a := saveItem(t, s, "a")
	b := saveItem(t, s, "b")

	// isolated root
	tr, err := g.Traverse(a.ID, 0)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(tr.Nodes) != 1 || tr.MaxDepthReached {
		t.Errorf("isolated root: nodes = %d, maxDepthReached = %v", len(tr.Nodes), tr.MaxDepthReached)
	}

	mustEdge(t, g, a.ID, b.ID, memory.RelSupports, 1.0)

	tr, err = g.Traverse(a.ID, 0)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(tr.Nodes) != 1 {
		t.Errorf("len(Nodes) = %d, want 1 (root only)", len(tr.Nodes))
	}
	if !tr.MaxDepthReached {
		t.Error("MaxDepthReached = false for root with an edge")
	}
}

func TestTraverseCycle(t *testing.T) {
	g, s := newTestGraph(t)
	a := saveItem(t, s, "a")
	b := saveItem(t, s, "b")
	c := saveItem(t, s, "c")
	mustEdge(t, g, a.ID, b.ID, memory.RelSupports, 1.0)
	mustEdge(t, g, b.ID, c.ID, memory.RelSupports, 1.0)
	mustEdge(t, g, c.ID, a.ID, memory.RelSupports, 1.0)

	tr, err := g.Traverse(a.ID, 10)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(tr.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d on a 3-cycle, want 3", len(tr.Nodes))
	}
	seen := map[string]bool{}
	for _, n := range tr.Nodes {
		if seen[n.Knowledge.ID] {
			t.Errorf("node %s visited twice", n.Knowledge.ID)
		}
		seen[n.Knowledge.ID] = true
	}
}

func TestTraverseMissingRoot(t *testing.T) {
	g, _ := newTestGraph(t)
	tr, err := g.Traverse("ghost", 5)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if tr != nil {
		t.Errorf("Traverse(missing) = %+v, want nil", tr)
	}
}

func TestFindConnected(t *testing.T) {
	g, s := newTestGraph(t)
	hub := saveItem(t, s, "hub")
	n1 := saveItem(t, s, "n1")
	n2 := saveItem(t, s, "n2")
	distant := saveItem(t, s, "distant")
	mustEdge(t, g, hub.ID, n1.ID, memory.RelSupports, 1.0)
	mustEdge(t, g, n2.ID, hub.ID, memory.RelRefines, 0.9)
	// duplicate edge to n1 must not duplicate the neighbor
	mustEdge(t, g, hub.ID, n1.ID, memory.RelContradicts, 0.5)
	mustEdge(t, g, n1.ID, distant.ID, memory.RelSupports, 1.0)

	neighbors, err := g.FindConnected(hub.ID)
	if err != nil {
		t.Fatalf("FindConnected() error = %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("len(neighbors) = %d, want 2", len(neighbors))
	}
	for _, n := range neighbors {
		if n.ID == hub.ID {
			t.Error("neighbors include the item itself")
		}
		if n.ID == distant.ID {
			t.Error("neighbors include a depth-2 item")
		}
	}

	missing, err := g.FindConnected("ghost")
	if err != nil {
		t.Fatalf("FindConnected(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindConnected(missing) = %v, want nil", missing)
	}
}

func TestDerivationChainFollowsOnlyDerivesFrom(t *testing.T) {
	g, s := newTestGraph(t)
	disc := saveItem(t, s, "discovery")
	src := saveItem(t, s, "source")
	supporter := saveItem(t, s, "supporter")
	deepSrc := saveItem(t, s, "deep source")
	mustEdge(t, g, disc.ID, src.ID, memory.RelDerivesFrom, 1.0)
	mustEdge(t, g, disc.ID, supporter.ID, memory.RelSupports, 1.0)
	mustEdge(t, g, src.ID, deepSrc.ID, memory.RelDerivesFrom, 1.0)
	// inbound derives_from must not be followed
	mustEdge(t, g, supporter.ID, disc.ID, memory.RelDerivesFrom, 1.0)

	chain, err := g.DerivationChain(disc.ID, 5)
	if err != nil {
		t.Fatalf("DerivationChain() error = %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
	if chain[0].ID != src.ID || chain[1].ID != deepSrc.ID {
		t.Errorf("chain = %s, %s; want src, deepSrc", chain[0].ID, chain[1].ID)
	}
}

func TestDerivationChainDepthBound(t *testing.T) {
	g, s := newTestGraph(t)
	disc := saveItem(t, s, "discovery")
	src := saveItem(t, s, "source")
	deep := saveItem(t, s, "deep")
	mustEdge(t, g, disc.ID, src.ID, memory.RelDerivesFrom, 1.0)
	mustEdge(t, g, src.ID, deep.ID, memory.RelDerivesFrom, 1.0)

	chain, err := g.DerivationChain(disc.ID, 1)
	if err != nil {
		t.Fatalf("DerivationChain() error = %v", err)
	}
	if len(chain) != 1 || chain[0].ID != src.ID {
		t.Errorf("chain = %+v, want only src", chain)
	}
}

func TestDerivationChainMissing(t *testing.T) {
	g, _ := newTestGraph(t)
	chain, err := g.DerivationChain("ghost", 5)
	if err != nil {
		t.Fatalf("DerivationChain() error = %v", err)
	}
	if chain != nil {
		t.Errorf("DerivationChain(missing) = %v, want nil", chain)
	}
}

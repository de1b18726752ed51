// Package graph maintains the knowledge graph: typed, weighted, directed
// edges between knowledge items, breadth-first traversal with cycle
// safety, derivation chains, and auto-discovery of derived knowledge.
package graph

import (
	"fmt"

	"github.com/recallhq/recall/internal/memory"
)

// Store is the slice of the record store the graph needs.
type Store interface {
	GetKnowledge(id string) (*memory.KnowledgeItem, error)
	SaveKnowledge(p memory.SaveKnowledgeParams) (*memory.KnowledgeItem, error)
	InsertEdge(fromID, toID, relationship string, strength float64) (*memory.Edge, error)
	EdgesForNode(id string) ([]memory.Edge, error)
	DeleteEdgesForNode(id string) (int, error)
	CountEdges(id string) (int, error)
	PutEmbedding(kind, id string, vec []float32) error
}

// Config holds graph configuration.
type Config struct {
	// MaxDepth bounds traversals when the caller passes a negative depth.
	MaxDepth int
	// AutoDiscovery enables the reasoning-collaborator phase of
	// OnKnowledgeCreated.
	AutoDiscovery bool
	// NeighborLimit caps the neighbors handed to the reasoner.
	NeighborLimit int
	// SearchEdgeMinScore is the hybrid-search score below which no
	// related-item edge is inferred.
	SearchEdgeMinScore float64
	// RefinesMinScore is the similarity above which a same-type neighbor
	// is treated as refined rather than supported.
	RefinesMinScore float64
	// MinProposalConfidence rejects reasoner proposals at or below it.
	MinProposalConfidence float64
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() Config {
	return Config{
		MaxDepth:              5,
		AutoDiscovery:         true,
		NeighborLimit:         5,
		SearchEdgeMinScore:    0.5,
		RefinesMinScore:       0.8,
		MinProposalConfidence: 0.3,
	}
}

// Graph exposes edge and traversal operations over the record store.
type Graph struct {
	store Store
	cfg   Config
}

// New creates a Graph.
func New(store Store, cfg Config) *Graph {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	return &Graph{store: store, cfg: cfg}
}

// Node is one visited entry in a traversal.
type Node struct {
	Knowledge *memory.KnowledgeItem `json:"knowledge"`
	Edges     []memory.Edge         `json:"edges"`
	Depth     int                   `json:"depth"`
}

// Traversal is the result of a breadth-first walk from a root item.
type Traversal struct {
	Root            string `json:"root"`
	Nodes           []Node `json:"nodes"`
	MaxDepthReached bool   `json:"max_depth_reached"`
}

// CreateEdge inserts a typed edge between two existing knowledge items.
// strength <= 0 defaults to 1.0. Duplicate edges between the same pair are
// permitted.
func (g *Graph) CreateEdge(fromID, toID, relationship string, strength float64) (*memory.Edge, error) {
	if !memory.ValidRelationship(relationship) {
		return nil, fmt.Errorf("graph: unknown relationship %q", relationship)
	}
	if strength <= 0 {
		strength = 1.0
	}
	return g.store.InsertEdge(fromID, toID, relationship, strength)
}

// EdgesForNode returns all edges incident to a node, strongest first.
func (g *Graph) EdgesForNode(id string) ([]memory.Edge, error) {
	return g.store.EdgesForNode(id)
}

// DeleteEdgesForNode removes all edges incident to a node and returns the
// count removed.
func (g *Graph) DeleteEdgesForNode(id string) (int, error) {
	return g.store.DeleteEdgesForNode(id)
}

// CountEdges returns the edge count, globally when id is empty.
func (g *Graph) CountEdges(id string) (int, error) {
	return g.store.CountEdges(id)
}

// Traverse walks the graph breadth-first from startID. Nodes at exactly
// maxDepth are recorded but not expanded; MaxDepthReached reports whether
// any node was cut off that way. A visited set makes cycles safe. Returns
// (nil, nil) when startID does not resolve to an item — "not found" is
// distinct from "found, no connections". maxDepth < 0 uses the configured
// default.
func (g *Graph) Traverse(startID string, maxDepth int) (*Traversal, error) {
	if maxDepth < 0 {
		maxDepth = g.cfg.MaxDepth
	}

	root, err := g.store.GetKnowledge(startID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	result := &Traversal{Root: startID}
	visited := map[string]bool{startID: true}

	type entry struct {
		item  *memory.KnowledgeItem
		depth int
	}
	queue := []entry{{item: root, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		edges, err := g.store.EdgesForNode(cur.item.ID)
		if err != nil {
			return nil, err
		}
		result.Nodes = append(result.Nodes, Node{
			Knowledge: cur.item,
			Edges:     edges,
			Depth:     cur.depth,
		})

		for _, e := range edges {
			other := e.ToID
			if other == cur.item.ID {
				other = e.FromID
			}
			if visited[other] {
				continue
			}
			if cur.depth >= maxDepth {
				result.MaxDepthReached = true
				continue
			}
			item, err := g.store.GetKnowledge(other)
			if err != nil {
				return nil, err
			}
			if item == nil {
				continue
			}
			visited[other] = true
			queue = append(queue, entry{item: item, depth: cur.depth + 1})
		}
	}
	return result, nil
}

// FindConnected returns the deduplicated depth-1 neighbors of an item,
// excluding the item itself. Returns (nil, nil) when the item is missing;
// an existing item with no connections yields an empty non-nil slice.
func (g *Graph) FindConnected(id string) ([]memory.KnowledgeItem, error) {
	root, err := g.store.GetKnowledge(id)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	edges, err := g.store.EdgesForNode(id)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{id: true}
	neighbors := []memory.KnowledgeItem{}
	for _, e := range edges {
		other := e.ToID
		if other == id {
			other = e.FromID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		item, err := g.store.GetKnowledge(other)
		if err != nil {
			return nil, err
		}
		if item != nil {
			neighbors = append(neighbors, *item)
		}
	}
	return neighbors, nil
}

// DerivationChain follows derives_from edges outward from a discovery
// toward its sources, breadth-first and depth-bounded, and returns the
// source items in BFS order. Only derives_from edges in the outgoing
// direction are followed. Returns (nil, nil) when the item is missing; an
// item with no recorded sources yields an empty non-nil slice.
func (g *Graph) DerivationChain(discoveryID string, maxDepth int) ([]memory.KnowledgeItem, error) {
	if maxDepth < 0 {
		maxDepth = g.cfg.MaxDepth
	}

	root, err := g.store.GetKnowledge(discoveryID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	visited := map[string]bool{discoveryID: true}
	chain := []memory.KnowledgeItem{}

	type entry struct {
		id    string
		depth int
	}
	queue := []entry{{id: discoveryID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := g.store.EdgesForNode(cur.id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.Relationship != memory.RelDerivesFrom || e.FromID != cur.id {
				continue
			}
			if visited[e.ToID] {
				continue
			}
			visited[e.ToID] = true
			item, err := g.store.GetKnowledge(e.ToID)
			if err != nil {
				return nil, err
			}
			if item == nil {
				continue
			}
			chain = append(chain, *item)
			queue = append(queue, entry{id: e.ToID, depth: cur.depth + 1})
		}
	}
	return chain, nil
}

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/search"
)

// Reasoner is the optional external reasoning collaborator. Its reply is
// free text expected to contain a JSON payload; everything it returns is
// validated before being trusted.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Searcher is the hybrid search seam the discovery engine uses to find
// related knowledge.
type Searcher interface {
	Search(query string, opts search.Options, queryEmbedding []float32) ([]search.Result, error)
}

// Discovery runs the side effects of a knowledge save: provenance edges
// for declared sources, inferred edges to related items, and best-effort
// synthesis of new discoveries via the reasoner.
type Discovery struct {
	graph    *Graph
	store    Store
	searcher Searcher
	reasoner Reasoner           // optional
	embedder embedding.Provider // optional
	cfg      Config
}

// NewDiscovery creates the discovery engine. reasoner and embedder may be
// nil; the corresponding phases are skipped.
func NewDiscovery(g *Graph, searcher Searcher, reasoner Reasoner, embedder embedding.Provider) *Discovery {
	return &Discovery{
		graph:    g,
		store:    g.store,
		searcher: searcher,
		reasoner: reasoner,
		embedder: embedder,
		cfg:      g.cfg,
	}
}

// OnKnowledgeCreated is invoked after a knowledge item is saved.
//
// The required phase creates derives_from edges to every declared source
// that exists; its store errors propagate to the caller. The best-effort
// phase (related-item edges and reasoner discoveries) catches and logs its
// own failures so the save itself never fails because of enrichment.
func (d *Discovery) OnKnowledgeCreated(ctx context.Context, item *memory.KnowledgeItem) error {
	declared := make(map[string]bool, len(item.SourceKnowledgeIDs))
	for _, srcID := range item.SourceKnowledgeIDs {
		declared[srcID] = true
		src, err := d.store.GetKnowledge(srcID)
		if err != nil {
			return fmt.Errorf("graph: resolve source %s: %w", srcID, err)
		}
		if src == nil {
			continue
		}
		if _, err := d.store.InsertEdge(item.ID, srcID, memory.RelDerivesFrom, 1.0); err != nil {
			return fmt.Errorf("graph: source edge: %w", err)
		}
	}

	if err := d.linkRelated(ctx, item, declared); err != nil {
		log.Printf("WARNING: related-item linking for %s failed: %v", item.ID, err)
	}
	if d.cfg.AutoDiscovery && discoverableType(item.Type) {
		if err := d.synthesize(ctx, item); err != nil {
			log.Printf("WARNING: discovery synthesis for %s failed: %v", item.ID, err)
		}
	}
	return nil
}

// linkRelated searches for similar knowledge in the same project and
// creates inferred edges for strong matches that are not declared sources.
func (d *Discovery) linkRelated(ctx context.Context, item *memory.KnowledgeItem, declared map[string]bool) error {
	var queryVec []float32
	if d.embedder != nil {
		vec, err := d.embedder.Embed(ctx, item.Content)
		if err != nil {
			log.Printf("WARNING: embed query for %s failed: %v", item.ID, err)
		} else {
			queryVec = vec
		}
	}

	results, err := d.searcher.Search(item.Content, search.Options{
		Type:    memory.KindKnowledge,
		Project: item.Project,
		Limit:   5,
	}, queryVec)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.ID == item.ID || declared[r.ID] || r.Score < d.cfg.SearchEdgeMinScore {
			continue
		}
		neighbor, err := d.store.GetKnowledge(r.ID)
		if err != nil {
			return err
		}
		if neighbor == nil {
			continue
		}
		rel := d.inferRelationship(item, neighbor, r.Score)
		if _, err := d.store.InsertEdge(item.ID, r.ID, rel, r.Score); err != nil {
			return err
		}
	}
	return nil
}

// inferRelationship picks an edge type for a search-result neighbor: a
// very similar item of the same type is refined; discoveries and patterns
// lead to their neighbors; everything else is supported. A deliberately
// simple heuristic, not a classifier.
func (d *Discovery) inferRelationship(item, neighbor *memory.KnowledgeItem, score float64) string {
	if score > d.cfg.RefinesMinScore && neighbor.Type == item.Type {
		return memory.RelRefines
	}
	if item.Type == memory.TypeDiscovery || item.Type == memory.TypePattern {
		return memory.RelLeadsTo
	}
	return memory.RelSupports
}

func discoverableType(t string) bool {
	switch t {
	case memory.TypeFact, memory.TypePattern, memory.TypeIssue, memory.TypeDiscovery:
		return true
	}
	return false
}

// proposal is the shape each reasoner discovery must match.
type proposal struct {
	Content    string   `json:"content"`
	SourceIDs  []string `json:"sourceIds"`
	Confidence float64  `json:"confidence"`
}

// synthesize hands the new item plus its neighbors to the reasoner and
// persists any validated discoveries it proposes.
func (d *Discovery) synthesize(ctx context.Context, item *memory.KnowledgeItem) error {
	if d.reasoner == nil {
		return nil
	}

	neighbors, err := d.graph.FindConnected(item.ID)
	if err != nil {
		return err
	}
	if len(neighbors) == 0 {
		return nil
	}
	if len(neighbors) > d.cfg.NeighborLimit {
		neighbors = neighbors[:d.cfg.NeighborLimit]
	}

	reply, err := d.reasoner.Complete(ctx, discoveryPrompt(item, neighbors))
	if err != nil {
		return err
	}

	neighborIDs := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		neighborIDs[n.ID] = true
	}

	for _, p := range d.parseProposals(reply) {
		sources := []string{item.ID}
		for _, id := range p.SourceIDs {
			if neighborIDs[id] {
				sources = append(sources, id)
			}
		}

		disc, err := d.store.SaveKnowledge(memory.SaveKnowledgeParams{
			Type:               memory.TypeDiscovery,
			Content:            p.Content,
			SourceKnowledgeIDs: sources,
			Project:            item.Project,
			Tags:               []string{"auto-discovered"},
			Confidence:         p.Confidence,
		})
		if err != nil {
			return err
		}
		for _, srcID := range sources {
			if _, err := d.store.InsertEdge(disc.ID, srcID, memory.RelDerivesFrom, p.Confidence); err != nil {
				return err
			}
		}
		d.embedDiscovery(ctx, disc)
	}
	return nil
}

func (d *Discovery) embedDiscovery(ctx context.Context, disc *memory.KnowledgeItem) {
	if d.embedder == nil {
		return
	}
	vec, err := d.embedder.Embed(ctx, disc.Content)
	if err != nil {
		log.Printf("WARNING: embed discovery %s failed: %v", disc.ID, err)
		return
	}
	if err := d.store.PutEmbedding(memory.KindKnowledge, disc.ID, vec); err != nil {
		log.Printf("WARNING: store embedding for %s failed: %v", disc.ID, err)
	}
}

// parseProposals extracts the first JSON object from the reasoner's free
// text and returns only proposals that pass validation: confidence above
// the cutoff, non-empty content, and sourceIds present as an array.
// Malformed input yields an empty list, never an error.
func (d *Discovery) parseProposals(reply string) []proposal {
	obj := firstJSONObject(reply)
	if obj == "" {
		return nil
	}

	var wrapped struct {
		Discoveries []json.RawMessage `json:"discoveries"`
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(obj), &wrapped); err == nil && wrapped.Discoveries != nil {
		raw = wrapped.Discoveries
	} else {
		raw = []json.RawMessage{json.RawMessage(obj)}
	}

	var accepted []proposal
	for _, msg := range raw {
		var probe struct {
			Content    string          `json:"content"`
			SourceIDs  json.RawMessage `json:"sourceIds"`
			Confidence float64         `json:"confidence"`
		}
		if err := json.Unmarshal(msg, &probe); err != nil {
			continue
		}
		if strings.TrimSpace(probe.Content) == "" || probe.Confidence <= d.cfg.MinProposalConfidence {
			continue
		}
		var ids []string
		if probe.SourceIDs == nil || json.Unmarshal(probe.SourceIDs, &ids) != nil {
			continue
		}
		accepted = append(accepted, proposal{
			Content:    probe.Content,
			SourceIDs:  ids,
			Confidence: probe.Confidence,
		})
	}
	return accepted
}

// firstJSONObject returns the first balanced {...} block in s, tracking
// string and escape state so braces inside strings do not count.
func firstJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+len("}")]
			}
		}
	}
	return ""
}

func discoveryPrompt(item *memory.KnowledgeItem, neighbors []memory.KnowledgeItem) string {
	var b strings.Builder
	b.WriteString("You connect pieces of saved engineering knowledge.\n\n")
	b.WriteString("New item (" + item.Type + ", id " + item.ID + "):\n")
	b.WriteString(item.Content + "\n\nRelated items:\n")
	for _, n := range neighbors {
		b.WriteString("- id " + n.ID + " (" + n.Type + "): " + n.Content + "\n")
	}
	b.WriteString(`
Propose zero or more non-obvious insights that combine the new item with
the related items. Reply with JSON only, in this exact shape:
{"discoveries":[{"content":"...","sourceIds":["id",...],"confidence":0.0}]}
Use an empty discoveries array if nothing meaningful connects.`)
	return b.String()
}

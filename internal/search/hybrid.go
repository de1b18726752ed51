// Package search implements hybrid retrieval over the record store:
// full-text rank, vector distance, recency and project affinity fused
// into one 0-1 score per candidate.
package search

import (
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/recallhq/recall/internal/memory"
)

// TextSearcher is the full-text side of the record store.
type TextSearcher interface {
	SearchText(kind, ftsQuery string, f memory.TextFilter) ([]memory.TextHit, error)
}

// VectorSearcher is the nearest-neighbor side of the record store.
// HasVectorIndex is the runtime availability flag; when it reports false
// the vector contribution is skipped entirely.
type VectorSearcher interface {
	SearchVector(query []float32, limit int) ([]memory.VectorHit, error)
	HasVectorIndex() bool
}

// TypeAll searches every collection kind.
const TypeAll = "all"

// Weights controls the fusion of the four ranking signals. They are not
// required to sum to 1 but do by convention.
type Weights struct {
	FTS     float64
	Vector  float64
	Recency float64
	Project float64
}

// DefaultWeights returns the standard fusion weights.
func DefaultWeights() Weights {
	return Weights{FTS: 0.4, Vector: 0.4, Recency: 0.1, Project: 0.1}
}

// Config holds engine configuration.
type Config struct {
	Weights      Weights
	DefaultLimit int
	// RecencyHalfLifeDays is the characteristic decay of the recency bonus.
	RecencyHalfLifeDays float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		DefaultLimit:        20,
		RecencyHalfLifeDays: 30,
	}
}

// Options narrows a search.
type Options struct {
	Type     string // a collection kind, or TypeAll
	Project  string
	Tags     []string
	FromDate time.Time
	ToDate   time.Time
	Limit    int
}

// Result is one ranked search hit. Score is nominally 0-1 under default
// weights.
type Result struct {
	ID        string    `json:"id"`
	Kind      string    `json:"type"`
	Snippet   string    `json:"snippet"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"timestamp,omitempty"`
	Project   string    `json:"project,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// Engine fuses full-text and vector search into one ranked list.
type Engine struct {
	text TextSearcher
	vec  VectorSearcher
	cfg  Config
	now  func() time.Time
}

// New creates a search engine. vec may be nil when no vector backend is
// wired; full-text search still works.
func New(text TextSearcher, vec VectorSearcher, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.RecencyHalfLifeDays <= 0 {
		cfg.RecencyHalfLifeDays = 30
	}
	return &Engine{text: text, vec: vec, cfg: cfg, now: time.Now}
}

// candidate accumulates per-ID scoring state before fusion.
type candidate struct {
	kind      string
	id        string
	snippet   string
	createdAt time.Time
	project   string
	tags      []string
	hasMeta   bool
	ftsScore  float64
	vecScore  float64
}

// Search runs the hybrid search. queryEmbedding may be nil; the vector
// contribution is then zero for every candidate. Sub-search failures are
// logged and the search continues with partial results. Zero candidates
// yield an empty slice, not an error.
//
// Ties on the fused score break deterministically: newer timestamp first,
// then ID ascending.
func (e *Engine) Search(query string, opts Options, queryEmbedding []float32) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	ftsQuery := BuildFTSQuery(query)

	kinds := memory.Kinds()
	if opts.Type != "" && opts.Type != TypeAll {
		kinds = []string{opts.Type}
	}

	byKey := make(map[string]*candidate)
	key := func(kind, id string) string { return kind + "\x00" + id }

	// full-text phase
	var maxRank float64
	var textHits []memory.TextHit
	if ftsQuery != "" {
		filter := memory.TextFilter{
			Project:  opts.Project,
			FromDate: opts.FromDate,
			ToDate:   opts.ToDate,
			Limit:    limit,
		}
		for _, kind := range kinds {
			hits, err := e.text.SearchText(kind, ftsQuery, filter)
			if err != nil {
				log.Printf("WARNING: full-text search for %s failed: %v", kind, err)
				continue
			}
			for _, h := range hits {
				if r := math.Abs(h.Rank); r > maxRank {
					maxRank = r
				}
			}
			textHits = append(textHits, hits...)
		}
	}
	for _, h := range textHits {
		c := &candidate{
			kind:      h.Kind,
			id:        h.ID,
			snippet:   h.Snippet,
			createdAt: h.CreatedAt,
			project:   h.Project,
			tags:      h.Tags,
			hasMeta:   true,
			ftsScore:  normalizeRank(h.Rank, maxRank),
		}
		byKey[key(h.Kind, h.ID)] = c
	}

	// vector phase
	if len(queryEmbedding) > 0 && e.vec != nil && e.vec.HasVectorIndex() {
		vecHits, err := e.vec.SearchVector(queryEmbedding, limit*2)
		if err != nil {
			log.Printf("WARNING: vector search failed: %v", err)
		} else {
			var maxDist float64
			for _, h := range vecHits {
				if h.Distance > maxDist {
					maxDist = h.Distance
				}
			}
			for _, h := range vecHits {
				if opts.Type != "" && opts.Type != TypeAll && h.Kind != opts.Type {
					continue
				}
				score := normalizeRank(h.Distance, maxDist)
				if c, ok := byKey[key(h.Kind, h.ID)]; ok {
					c.vecScore = score
					continue
				}
				byKey[key(h.Kind, h.ID)] = &candidate{
					kind:     h.Kind,
					id:       h.ID,
					vecScore: score,
				}
			}
		}
	}

	if len(byKey) == 0 {
		return []Result{}, nil
	}

	// fusion
	now := e.now()
	w := e.cfg.Weights
	results := make([]Result, 0, len(byKey))
	for _, c := range byKey {
		if len(opts.Tags) > 0 && c.hasMeta && !intersects(c.tags, opts.Tags) {
			continue
		}

		recency := 1.0
		if !c.createdAt.IsZero() {
			ageDays := now.Sub(c.createdAt).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			recency = math.Exp(-ageDays / e.cfg.RecencyHalfLifeDays)
		}

		affinity := 0.0
		if opts.Project != "" && c.project == opts.Project {
			affinity = 1.0
		}

		kind := c.kind
		if !c.hasMeta && kind == "" {
			kind = memory.KindObservation
		}

		results = append(results, Result{
			ID:        c.id,
			Kind:      kind,
			Snippet:   c.snippet,
			Score:     w.FTS*c.ftsScore + w.Vector*c.vecScore + w.Recency*recency + w.Project*affinity,
			CreatedAt: c.createdAt,
			Project:   c.project,
			Tags:      c.tags,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// normalizeRank maps a backend rank or distance (lower magnitude = better)
// to a 0-1 goodness score. maxAbs is the largest magnitude among the hits;
// the floor of 1 avoids divide-by-zero when only one hit exists.
func normalizeRank(rank, maxAbs float64) float64 {
	return 1 - math.Abs(rank)/math.Max(maxAbs, 1)
}

// SanitizeQuery strips characters that break FTS5 token parsing and
// collapses whitespace.
func SanitizeQuery(query string) string {
	var b strings.Builder
	for _, r := range query {
		if strings.ContainsRune(`*(){}[]^~!@#$%&=+|\<>;`, r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// BuildFTSQuery sanitizes a raw query and turns it into an FTS5 MATCH
// expression with each word quoted, ORed so partial matches still rank.
// Returns "" when nothing searchable remains.
func BuildFTSQuery(query string) string {
	sanitized := SanitizeQuery(query)
	if sanitized == "" {
		return ""
	}
	words := strings.Fields(sanitized)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

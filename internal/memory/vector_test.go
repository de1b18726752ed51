package memory_test

import (
	"math"
	"testing"

	"github.com/recallhq/recall/internal/memory"
)

func TestPutAndGetEmbedding(t *testing.T) {
	s := newTestStore(t)
	item := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "embedded"})

	vec := []float32{0.1, -0.5, 0.9}
	if err := s.PutEmbedding(memory.KindKnowledge, item.ID, vec); err != nil {
		t.Fatalf("PutEmbedding() error = %v", err)
	}

	got, err := s.GetEmbedding(memory.KindKnowledge, item.ID)
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestGetEmbeddingMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetEmbedding(memory.KindKnowledge, "nope")
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetEmbedding(missing) = %v, want nil", got)
	}
}

func TestPutEmbeddingRejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutEmbedding(memory.KindKnowledge, "x", nil); err == nil {
		t.Error("PutEmbedding(nil) succeeded, want error")
	}
}

func TestHasVectorIndex(t *testing.T) {
	s := newTestStore(t)
	if s.HasVectorIndex() {
		t.Error("HasVectorIndex() = true on empty store")
	}
	item := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "x"})
	if err := s.PutEmbedding(memory.KindKnowledge, item.ID, []float32{1, 0}); err != nil {
		t.Fatalf("PutEmbedding() error = %v", err)
	}
	if !s.HasVectorIndex() {
		t.Error("HasVectorIndex() = false after insert")
	}
}

func TestSearchVectorOrdersByDistance(t *testing.T) {
	s := newTestStore(t)
	near := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "near"})
	far := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "far"})
	mid := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "mid"})

	put := func(id string, vec []float32) {
		t.Helper()
		if err := s.PutEmbedding(memory.KindKnowledge, id, vec); err != nil {
			t.Fatalf("PutEmbedding() error = %v", err)
		}
	}
	put(near.ID, []float32{1, 0})
	put(far.ID, []float32{-1, 0})
	put(mid.ID, []float32{1, 1})

	hits, err := s.SearchVector([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("len(hits) = %d, want 3", len(hits))
	}
	if hits[0].ID != near.ID || hits[1].ID != mid.ID || hits[2].ID != far.ID {
		t.Errorf("order = %s %s %s, want near mid far", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	if hits[0].Distance > 1e-9 {
		t.Errorf("identical-direction distance = %v, want ~0", hits[0].Distance)
	}
}

func TestSearchVectorSkipsMismatchedDim(t *testing.T) {
	s := newTestStore(t)
	a := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "a"})
	b := mustSaveKnowledge(t, s, memory.SaveKnowledgeParams{Content: "b"})
	if err := s.PutEmbedding(memory.KindKnowledge, a.ID, []float32{1, 0}); err != nil {
		t.Fatalf("PutEmbedding() error = %v", err)
	}
	if err := s.PutEmbedding(memory.KindKnowledge, b.ID, []float32{1, 0, 0}); err != nil {
		t.Fatalf("PutEmbedding() error = %v", err)
	}

	hits, err := s.SearchVector([]float32{0, 1}, 10)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ID != a.ID {
		t.Errorf("hits = %+v, want only matching-dim record", hits)
	}
}

func TestSearchVectorEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.SearchVector(nil, 5)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil", hits)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 1},
	}
	for _, tt := range tests {
		got := memory.CosineDistance(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: CosineDistance = %v, want %v", tt.name, got, tt.want)
		}
	}
}

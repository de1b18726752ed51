package memory

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// VectorHit is one nearest-neighbor hit from the embeddings table.
// Distance is cosine distance (0 = identical direction, 2 = opposite).
type VectorHit struct {
	Kind     string
	ID       string
	Distance float64
}

// PutEmbedding stores or replaces the embedding vector for a record.
func (s *Store) PutEmbedding(kind, id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("memory: put embedding: empty vector")
	}
	_, err := s.db.Exec(
		`INSERT INTO embeddings (kind, id, dim, vector) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector`,
		kind, id, len(vec), encodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("memory: put embedding: %w", err)
	}
	return nil
}

// GetEmbedding retrieves the stored vector for a record, or (nil, nil) if
// no embedding exists.
func (s *Store) GetEmbedding(kind, id string) ([]float32, error) {
	var blob []byte
	var dim int
	err := s.db.QueryRow(
		`SELECT dim, vector FROM embeddings WHERE kind = ? AND id = ?`, kind, id,
	).Scan(&dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get embedding: %w", err)
	}
	vec, err := decodeVector(blob, dim)
	if err != nil {
		return nil, fmt.Errorf("memory: get embedding: %w", err)
	}
	return vec, nil
}

// HasVectorIndex reports whether any embeddings are stored. Callers use it
// to decide whether vector search can contribute candidates.
func (s *Store) HasVectorIndex() bool {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// SearchVector returns the limit nearest records to the query vector by
// cosine distance, across all kinds. Brute-force scan; fine at the scale of
// a per-developer memory store. Vectors of mismatched dimension are skipped.
func (s *Store) SearchVector(query []float32, limit int) ([]VectorHit, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`SELECT kind, id, dim, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("memory: vector search: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var kind, id string
		var dim int
		var blob []byte
		if err := rows.Scan(&kind, &id, &dim, &blob); err != nil {
			return nil, fmt.Errorf("memory: vector search: %w", err)
		}
		if dim != len(query) {
			continue
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			continue
		}
		hits = append(hits, VectorHit{Kind: kind, ID: id, Distance: CosineDistance(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: vector search: %w", err)
	}

	sortVectorHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CosineDistance returns 1 - cosine similarity of two equal-length vectors.
// A zero vector yields the maximum distance 1.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func sortVectorHits(hits []VectorHit) {
	// insertion sort keeps ties stable by scan order
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d", len(blob), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

package knowledge

import (
	"fmt"
	"sort"
)

// Hit is one nearest-neighbor result: the document's position in the
// snapshot and its squared L2 distance to the query vector.
type Hit struct {
	Index    int
	Distance float64
}

// FlatIndex is an exact nearest-neighbor index over the snapshot's
// embeddings. The snapshot is small (hundreds of documents), so a flat
// scan beats any approximate structure and stays deterministic.
type FlatIndex struct {
	vectors [][]float32
	dim     int
}

func NewFlatIndex(snap *Snapshot) *FlatIndex {
	vectors := make([][]float32, len(snap.Docs))
	for i, d := range snap.Docs {
		vectors[i] = d.Embedding
	}
	return &FlatIndex{vectors: vectors, dim: snap.Dim}
}

// Search returns up to k hits ordered by ascending distance.
func (ix *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dim %d, index dim %d", len(query), ix.dim)
	}
	if k <= 0 {
		k = 1
	}

	hits := make([]Hit, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = Hit{Index: i, Distance: l2sq(query, v)}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (ix *FlatIndex) Len() int { return len(ix.vectors) }

func l2sq(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

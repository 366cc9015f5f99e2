// Package knowledge implements the retrieval engine: a fixed document
// snapshot with vector search, synonym expansion, heuristic score
// blending and a bounded query cache.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"

	"chatvri/internal/domain"
)

// Snapshot is the pre-built, read-only knowledge base loaded at process
// start. It is never mutated for the process lifetime.
type Snapshot struct {
	Docs []domain.Document
	Dim  int
}

// LoadSnapshot reads a knowledge base JSON file produced by the ingest
// tooling: an array of documents with precomputed embeddings.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read knowledge snapshot %s: %w", path, err)
	}

	var docs []domain.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("cannot parse knowledge snapshot %s: %w", path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("knowledge snapshot %s is empty", path)
	}

	dim := len(docs[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("knowledge snapshot %s has no embeddings (re-run ingest)", path)
	}
	for i, d := range docs {
		if len(d.Embedding) != dim {
			return nil, fmt.Errorf("document %d (%q): embedding dim %d, expected %d",
				i, d.Title, len(d.Embedding), dim)
		}
	}

	return &Snapshot{Docs: docs, Dim: dim}, nil
}

package domain

import "context"

// Document is one entry of the pre-built knowledge snapshot. The snapshot
// is loaded at process start and treated as read-only for the process
// lifetime.
type Document struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"` // canonical faculty code, e.g. "ENFERMERIA"
	DocType   string    `json:"doc_type"` // "contact" | "schedule" | "location" | "research"
	Source    string    `json:"source"`
	Embedding []float32 `json:"embedding"`
}

// ScoredDocument is a retrieval hit. Produced fresh per query and never
// mutated after scoring.
type ScoredDocument struct {
	Document
	Similarity float64 // 1/(1+distance) from the vector search
	Score      float64 // similarity plus heuristic bonuses
}

// Retriever is the knowledge-base search contract consumed by the
// dispatcher. Implementations must be pure given the same snapshot.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]ScoredDocument, error)
}

// Embedder turns text into a vector in the snapshot's embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

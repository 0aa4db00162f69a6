package rag

import "context"

// MetadataText is the metadata key holding a chunk's verbatim text.
const MetadataText = "text"

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// VectorIndex is one logical collection partitioned by namespace. All
// operations are scoped to a single namespace; there is no cross-namespace
// query. Implementations must be safe for concurrent use.
type VectorIndex interface {
	// EnsureReady creates the collection if it does not exist and fails with
	// ErrConfig when an existing collection has a different dimension.
	EnsureReady(ctx context.Context, dim int) error
	// Upsert writes vectors, replacing any with the same id in ns.
	Upsert(ctx context.Context, ns string, vectors []Vector) error
	// Query returns up to topK matches in ns ordered by descending cosine
	// similarity. An empty or unknown namespace yields no matches.
	Query(ctx context.Context, ns string, vec []float32, topK int) ([]Match, error)
	// DeleteNamespace removes every vector stored under ns.
	DeleteNamespace(ctx context.Context, ns string) error
}

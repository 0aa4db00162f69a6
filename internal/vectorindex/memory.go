package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/aitutor/internal/rag"
)

func init() {
	Register("memory", func(args interface{}, deps Deps) (rag.VectorIndex, error) {
		return NewMemory(), nil
	})
}

// MemoryIndex is a brute-force cosine index kept in process memory.
type MemoryIndex struct {
	mu     sync.RWMutex
	dim    int
	spaces map[string]map[string]rag.Vector
}

func NewMemory() *MemoryIndex {
	return &MemoryIndex{spaces: map[string]map[string]rag.Vector{}}
}

func (m *MemoryIndex) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", rag.ErrConfig, dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("%w: index dimension is %d, embedder produces %d", rag.ErrConfig, m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, ns string, vectors []rag.Vector) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		if err := checkDim(len(v.Values), m.dim); err != nil {
			return err
		}
	}
	space := m.spaces[ns]
	if space == nil {
		space = make(map[string]rag.Vector, len(vectors))
		m.spaces[ns] = space
	}
	for _, v := range vectors {
		values := make([]float32, len(v.Values))
		copy(values, v.Values)
		space[v.ID] = rag.Vector{ID: v.ID, Values: values, Metadata: copyMetadata(v.Metadata)}
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, ns string, vec []float32, topK int) ([]rag.Match, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkDim(len(vec), m.dim); err != nil {
		return nil, err
	}
	space := m.spaces[ns]
	if len(space) == 0 || topK <= 0 {
		return nil, nil
	}
	matches := make([]rag.Match, 0, len(space))
	for _, v := range space {
		matches = append(matches, rag.Match{
			ID:       v.ID,
			Score:    cosine(vec, v.Values),
			Metadata: copyMetadata(v.Metadata),
		})
	}
	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.spaces, ns)
	m.mu.Unlock()
	return nil
}

// Len reports how many vectors are stored under ns.
func (m *MemoryIndex) Len(ns string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spaces[ns])
}

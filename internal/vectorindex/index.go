package vectorindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/aitutor/internal/config"
	"github.com/xxxsen/aitutor/internal/rag"
)

// Deps carries the shared resources a backend may need.
type Deps struct {
	DB *sql.DB
}

type Factory func(args interface{}, deps Deps) (rag.VectorIndex, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.VectorIndexConfig, deps Deps) (rag.VectorIndex, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector index type: %s", cfg.Type)
	}
	return factory(cfg.Data, deps)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector index config: %w", err)
	}
	return nil
}

func checkNamespace(ns string) error {
	if strings.TrimSpace(ns) == "" {
		return fmt.Errorf("%w: namespace is required", rag.ErrConfig)
	}
	return nil
}

func checkDim(got, want int) error {
	if want <= 0 {
		return fmt.Errorf("%w: index is not ready", rag.ErrConfig)
	}
	if got != want {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", rag.ErrConfig, got, want)
	}
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cosine returns 0 when either vector has zero norm.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// sortMatches orders by descending score, then by id so equal scores are
// stable across runs.
func sortMatches(matches []rag.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

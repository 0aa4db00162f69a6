package vectorindex

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	"github.com/xxxsen/aitutor/internal/rag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type hnswConfig struct {
	Dir      string `json:"dir"`
	M        int    `json:"m"`
	EfSearch int    `json:"ef_search"`
}

func init() {
	Register("hnsw", func(args interface{}, deps Deps) (rag.VectorIndex, error) {
		cfg := &hnswConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewHNSW(cfg.Dir, cfg.M, cfg.EfSearch), nil
	})
}

// exactScanLimit is the namespace size up to which Query compares against
// every stored vector instead of walking the graph.
const exactScanLimit = 2000

// HNSWIndex keeps one coder/hnsw graph per namespace. Replaced vectors are
// orphaned in the graph instead of deleted and filtered out at query time;
// dropping a namespace drops its whole graph.
//
// With a snapshot directory the graphs are written on Close and read back by
// EnsureReady.
type HNSWIndex struct {
	dir      string
	m        int
	efSearch int

	mu     sync.RWMutex
	dim    int
	spaces map[string]*hnswSpace
	closed bool
}

type hnswSpace struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	meta    map[string]map[string]string
	zero    map[string]struct{}
	nextKey uint64
}

type hnswSnapshot struct {
	Namespace string
	Dim       int
	IDMap     map[string]uint64
	Meta      map[string]map[string]string
	Zero      map[string]struct{}
	NextKey   uint64
}

func NewHNSW(dir string, m, efSearch int) *HNSWIndex {
	if m <= 0 {
		m = 16
	}
	if efSearch <= 0 {
		efSearch = 20
	}
	return &HNSWIndex{
		dir:      dir,
		m:        m,
		efSearch: efSearch,
		spaces:   map[string]*hnswSpace{},
	}
}

func (h *HNSWIndex) newSpace() *hnswSpace {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = h.m
	graph.EfSearch = h.efSearch
	graph.Ml = 0.25
	return &hnswSpace{
		graph:  graph,
		idMap:  map[string]uint64{},
		keyMap: map[uint64]string{},
		meta:   map[string]map[string]string{},
		zero:   map[string]struct{}{},
	}
}

func (h *HNSWIndex) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", rag.ErrConfig, dim)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("hnsw index is closed")
	}
	if h.dim != 0 && h.dim != dim {
		return fmt.Errorf("%w: index dimension is %d, embedder produces %d", rag.ErrConfig, h.dim, dim)
	}
	if h.dim == 0 && h.dir != "" {
		if err := h.loadLocked(ctx, dim); err != nil {
			return err
		}
	}
	h.dim = dim
	return nil
}

func (h *HNSWIndex) Upsert(ctx context.Context, ns string, vectors []rag.Vector) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("hnsw index is closed")
	}
	for _, v := range vectors {
		if err := checkDim(len(v.Values), h.dim); err != nil {
			return err
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	space := h.spaces[ns]
	if space == nil {
		space = h.newSpace()
		h.spaces[ns] = space
	}
	for _, v := range vectors {
		if key, ok := space.idMap[v.ID]; ok {
			delete(space.keyMap, key)
			delete(space.idMap, v.ID)
		}
		delete(space.zero, v.ID)
		space.meta[v.ID] = copyMetadata(v.Metadata)

		vec := make([]float32, len(v.Values))
		copy(vec, v.Values)
		if !normalize(vec) {
			// cosine distance is undefined for zero vectors; keep them off the graph
			space.zero[v.ID] = struct{}{}
			continue
		}
		key := space.nextKey
		space.nextKey++
		space.graph.Add(hnsw.MakeNode(key, vec))
		space.idMap[v.ID] = key
		space.keyMap[key] = v.ID
	}
	return nil
}

func (h *HNSWIndex) Query(ctx context.Context, ns string, vec []float32, topK int) ([]rag.Match, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, fmt.Errorf("hnsw index is closed")
	}
	if err := checkDim(len(vec), h.dim); err != nil {
		return nil, err
	}
	space := h.spaces[ns]
	if space == nil || topK <= 0 {
		return nil, nil
	}
	query := make([]float32, len(vec))
	copy(query, vec)

	unit := normalize(query)

	matches := make([]rag.Match, 0, topK)
	if unit && len(space.idMap) > 0 && len(space.idMap) <= exactScanLimit {
		for _, id := range sortedKeys(space.idMap) {
			stored, ok := space.graph.Lookup(space.idMap[id])
			if !ok {
				continue
			}
			matches = append(matches, rag.Match{
				ID:       id,
				Score:    1 - hnsw.CosineDistance(query, stored),
				Metadata: space.meta[id],
			})
		}
		sortMatches(matches)
		if len(matches) > topK {
			matches = matches[:topK]
		}
		for i := range matches {
			matches[i].Metadata = copyMetadata(matches[i].Metadata)
		}
	} else if unit && space.graph.Len() > 0 {
		orphans := space.graph.Len() - len(space.idMap)
		k := topK + orphans
		if k > space.graph.Len() {
			k = space.graph.Len()
		}
		for _, node := range space.graph.Search(query, k) {
			id, ok := space.keyMap[node.Key]
			if !ok {
				continue
			}
			matches = append(matches, rag.Match{
				ID:       id,
				Score:    1 - hnsw.CosineDistance(query, node.Value),
				Metadata: copyMetadata(space.meta[id]),
			})
		}
		sortMatches(matches)
	} else if len(space.idMap) > 0 {
		// a zero query is equally far from everything
		for _, id := range sortedKeys(space.idMap) {
			matches = append(matches, rag.Match{ID: id, Metadata: copyMetadata(space.meta[id])})
		}
	}
	if len(matches) < topK {
		for _, id := range sortedKeys(space.zero) {
			matches = append(matches, rag.Match{ID: id, Metadata: copyMetadata(space.meta[id])})
		}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (h *HNSWIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.spaces, ns)
	if h.dir == "" {
		return nil
	}
	base := h.snapshotBase(ns)
	for _, p := range []string{base + ".graph", base + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove snapshot: %w", err)
		}
	}
	return nil
}

// Close writes every namespace to the snapshot directory, if one is set.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.dir == "" {
		return nil
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	for ns, space := range h.spaces {
		if err := h.saveSpace(ns, space); err != nil {
			return fmt.Errorf("save namespace %s: %w", ns, err)
		}
	}
	return nil
}

func (h *HNSWIndex) snapshotBase(ns string) string {
	sum := sha256.Sum256([]byte(ns))
	return filepath.Join(h.dir, hex.EncodeToString(sum[:]))
}

func (h *HNSWIndex) saveSpace(ns string, space *hnswSpace) error {
	base := h.snapshotBase(ns)
	if err := writeAtomic(base+".graph", func(f *os.File) error {
		return space.graph.Export(f)
	}); err != nil {
		return err
	}
	snap := hnswSnapshot{
		Namespace: ns,
		Dim:       h.dim,
		IDMap:     space.idMap,
		Meta:      space.meta,
		Zero:      space.zero,
		NextKey:   space.nextKey,
	}
	return writeAtomic(base+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(snap)
	})
}

func (h *HNSWIndex) loadLocked(ctx context.Context, dim int) error {
	metas, err := filepath.Glob(filepath.Join(h.dir, "*.meta"))
	if err != nil {
		return err
	}
	for _, metaPath := range metas {
		snap, err := readSnapshot(metaPath)
		if err != nil {
			return err
		}
		if snap.Dim != dim {
			return fmt.Errorf("%w: snapshot %s stores %d dimensions, embedder produces %d", rag.ErrConfig, filepath.Base(metaPath), snap.Dim, dim)
		}
		space := h.newSpace()
		graphPath := strings.TrimSuffix(metaPath, ".meta") + ".graph"
		if err := importGraph(space.graph, graphPath); err != nil {
			return err
		}
		space.idMap = snap.IDMap
		space.meta = snap.Meta
		space.nextKey = snap.NextKey
		if snap.Zero != nil {
			space.zero = snap.Zero
		}
		if space.meta == nil {
			space.meta = map[string]map[string]string{}
		}
		for id, key := range space.idMap {
			space.keyMap[key] = id
		}
		h.spaces[snap.Namespace] = space
	}
	logutil.GetLogger(ctx).Info("hnsw snapshot loaded", zap.String("dir", h.dir), zap.Int("namespaces", len(h.spaces)))
	return nil
}

func readSnapshot(path string) (*hnswSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	snap := &hnswSnapshot{}
	if err := gob.NewDecoder(f).Decode(snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

func importGraph(graph *hnsw.Graph[uint64], path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer f.Close()
	// Import needs an io.ByteReader
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// normalize scales v to unit length and reports false for a zero vector.
func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

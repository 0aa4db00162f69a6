package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/aitutor/internal/rag"
)

type qdrantConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"api_key"`
	Collection string `json:"collection"`
	Timeout    int    `json:"timeout"`
}

// point ids are UUIDv5 of namespace and chunk id under this namespace uuid
var qdrantPointSpace = uuid.MustParse("6f1d3b0e-5c4a-4d1e-9a55-8e0b6b2f7c11")

func init() {
	Register("qdrant", func(args interface{}, deps Deps) (rag.VectorIndex, error) {
		cfg := &qdrantConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewQdrant(cfg.URL, cfg.APIKey, cfg.Collection, time.Duration(cfg.Timeout)*time.Second)
	})
}

// QdrantIndex keeps every namespace in one Qdrant collection. The namespace
// is stored in the payload and every search or delete is filtered on it.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client

	mu  sync.RWMutex
	dim int
}

func NewQdrant(baseURL, apiKey, collection string, timeout time.Duration) (*QdrantIndex, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if collection == "" {
		collection = "ai_tutor"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (q *QdrantIndex) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", rag.ErrConfig, dim)
	}
	var info qdrantCollectionInfo
	status, err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	switch {
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dim,
				"distance": "Cosine",
			},
		}
		if _, err := q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil); err != nil {
			return fmt.Errorf("create collection %s: %w", q.collection, err)
		}
	case err != nil:
		return fmt.Errorf("get collection %s: %w", q.collection, err)
	default:
		vectors := info.Result.Config.Params.Vectors
		if vectors.Size != dim {
			return fmt.Errorf("%w: collection %s stores %d dimensions, embedder produces %d", rag.ErrConfig, q.collection, vectors.Size, dim)
		}
		if vectors.Distance != "" && !strings.EqualFold(vectors.Distance, "Cosine") {
			return fmt.Errorf("%w: collection %s uses %s distance, cosine required", rag.ErrConfig, q.collection, vectors.Distance)
		}
	}
	indexBody := map[string]any{
		"field_name":   "namespace",
		"field_schema": "keyword",
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), indexBody, nil); err != nil {
		return fmt.Errorf("create namespace payload index: %w", err)
	}
	q.mu.Lock()
	q.dim = dim
	q.mu.Unlock()
	return nil
}

func (q *QdrantIndex) dimension() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dim
}

func (q *QdrantIndex) Upsert(ctx context.Context, ns string, vectors []rag.Vector) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	dim := q.dimension()
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		if err := checkDim(len(v.Values), dim); err != nil {
			return err
		}
		points = append(points, map[string]any{
			"id":     pointID(ns, v.ID),
			"vector": v.Values,
			"payload": map[string]any{
				"namespace": ns,
				"chunk_id":  v.ID,
				"metadata":  copyMetadata(v.Metadata),
			},
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float32 `json:"score"`
		Payload struct {
			ChunkID  string            `json:"chunk_id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"payload"`
	} `json:"result"`
}

func (q *QdrantIndex) Query(ctx context.Context, ns string, vec []float32, topK int) ([]rag.Match, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	if err := checkDim(len(vec), q.dimension()); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
		"filter":       namespaceFilter(ns),
	}
	var resp qdrantSearchResponse
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	matches := make([]rag.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		meta := r.Payload.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		matches = append(matches, rag.Match{ID: r.Payload.ChunkID, Score: r.Score, Metadata: meta})
	}
	return matches, nil
}

func (q *QdrantIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	body := map[string]any{"filter": namespaceFilter(ns)}
	_, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil)
	return err
}

func namespaceFilter(ns string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "namespace", "match": map[string]any{"value": ns}},
		},
	}
}

func pointID(ns, chunkID string) string {
	return uuid.NewSHA1(qdrantPointSpace, []byte(ns+"/"+chunkID)).String()
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return q.baseURL + "/collections/" + url.PathEscape(q.collection) + suffix
}

// do sends a JSON request and decodes a JSON response into out. It returns
// the HTTP status even when the request failed with a non-2xx code.
func (q *QdrantIndex) do(ctx context.Context, method, target string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, target, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

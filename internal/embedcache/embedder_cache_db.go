package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Store persists vectors keyed by model name and content hash.
type Store interface {
	Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder consults the store before calling the wrapped
// embedder. Store read failures fall through to the embedder; write
// failures are logged only.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *dbEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := buildCacheKey(d.next.ModelName(), text)
	values, ok, err := d.store.Get(ctx, key.model, key.hash)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
	}
	if ok && len(values) == d.next.Dimension() {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("layer", "db"))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.model,
		ContentHash: key.hash,
		Embedding:   res,
		Ctime:       timeutil.NowUnix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("write embedding cache failed", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

type cacheKey struct {
	full  string
	model string
	hash  string
}

func buildCacheKey(modelName, text string) cacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])
	return cacheKey{full: "embed:" + modelName + ":" + hash, model: modelName, hash: hash}
}

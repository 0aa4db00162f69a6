package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// WrapLruCacheToEmbedder keeps recent vectors in process memory. A
// non-positive size or ttl disables the cache.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(key.full); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("layer", "lru"))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key.full, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

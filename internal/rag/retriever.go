package rag

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const DefaultTopK = 3

type RetrieverConfig struct {
	TopK    int
	Timeout time.Duration
}

// Retriever answers a query with the text of the closest chunks of one
// namespace. It never searches outside the namespace it is given.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	cfg      RetrieverConfig
}

func NewRetriever(embedder Embedder, index VectorIndex, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

// Retrieve joins the matched chunk texts with "\n" in the order the index
// ranked them. No match is not an error: the result is "".
func (r *Retriever) Retrieve(ctx context.Context, query, ns string) (string, error) {
	matches, err := r.RetrieveMatches(ctx, query, ns)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Metadata[MetadataText])
	}
	return strings.Join(texts, "\n"), nil
}

func (r *Retriever) RetrieveMatches(ctx context.Context, query, ns string) ([]Match, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapEmbedErr("embed query", err)
	}
	if err := checkDimension(vec, r.embedder.Dimension()); err != nil {
		return nil, err
	}
	matches, err := r.index.Query(ctx, ns, vec, r.cfg.TopK)
	if err != nil {
		logutil.GetLogger(ctx).Error("query index failed", zap.String("namespace", ns), zap.Error(err))
		return nil, wrapIndexErr("query index", err)
	}
	logutil.GetLogger(ctx).Debug("context retrieved",
		zap.String("namespace", ns),
		zap.Int("matches", len(matches)),
		zap.Duration("cost", time.Since(start)),
	)
	return matches, nil
}

package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type IngestorConfig struct {
	ChunkSize   int
	Concurrency int
	Timeout     time.Duration
}

// Ingestor writes one document into the index under a namespace.
//
// Every ingestion replaces the namespace: the whole document is extracted,
// chunked and embedded first, and only then are the old vectors deleted and
// the new ones written in a single upsert. A shorter re-ingestion therefore
// leaves no trailing chunks behind, and a failed one leaves the previous
// content in place.
type Ingestor struct {
	embedder Embedder
	index    VectorIndex
	cfg      IngestorConfig
}

func NewIngestor(embedder Embedder, index VectorIndex, cfg IngestorConfig) *Ingestor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Ingestor{embedder: embedder, index: index, cfg: cfg}
}

// Ingest extracts text from raw document bytes (PDF or plain text) and
// stores its chunks under ns. It returns the number of chunks written.
func (i *Ingestor) Ingest(ctx context.Context, data []byte, ns string) (int, error) {
	return i.IngestFile(ctx, "", data, ns)
}

// IngestFile is Ingest with a file name used to pick the extractor.
func (i *Ingestor) IngestFile(ctx context.Context, name string, data []byte, ns string) (int, error) {
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	text, err := Extract(name, data)
	if err != nil {
		logutil.GetLogger(ctx).Warn("document rejected", zap.String("namespace", ns), zap.String("name", name), zap.Error(err))
		return 0, err
	}
	return i.IngestText(ctx, text, ns)
}

func (i *Ingestor) IngestText(ctx context.Context, text string, ns string) (int, error) {
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("namespace", ns))
	start := time.Now()

	chunks := SplitText(text, i.cfg.ChunkSize)
	vectors, err := i.embedChunks(ctx, chunks)
	if err != nil {
		logger.Error("embed chunks failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return 0, err
	}
	if err := i.index.DeleteNamespace(ctx, ns); err != nil {
		logger.Error("clear namespace failed", zap.Error(err))
		return 0, fmt.Errorf("%w: clear namespace: %w", ErrTransient, err)
	}
	if len(vectors) == 0 {
		logger.Info("document has no text to index", zap.Int("chars", len(text)))
		return 0, nil
	}
	if err := i.index.Upsert(ctx, ns, vectors); err != nil {
		logger.Error("upsert chunks failed", zap.Int("chunks", len(vectors)), zap.Error(err))
		return 0, wrapIndexErr("upsert chunks", err)
	}
	logger.Info("document ingested",
		zap.Int("chars", len(text)),
		zap.Int("chunks", len(vectors)),
		zap.Duration("cost", time.Since(start)),
	)
	return len(vectors), nil
}

// Remove deletes every chunk stored under ns.
func (i *Ingestor) Remove(ctx context.Context, ns string) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := i.index.DeleteNamespace(ctx, ns); err != nil {
		return wrapIndexErr("delete namespace", err)
	}
	return nil
}

func (i *Ingestor) embedChunks(ctx context.Context, chunks []string) ([]Vector, error) {
	dim := i.embedder.Dimension()
	slots := make([]*Vector, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for idx, chunk := range chunks {
		if isBlank(chunk) {
			continue
		}
		g.Go(func() error {
			vec, err := i.embedder.Embed(gctx, chunk)
			if err != nil {
				return wrapEmbedErr("embed "+ChunkID(idx), err)
			}
			if err := checkDimension(vec, dim); err != nil {
				return err
			}
			slots[idx] = &Vector{
				ID:       ChunkID(idx),
				Values:   vec,
				Metadata: map[string]string{MetadataText: chunk},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	vectors := make([]Vector, 0, len(chunks))
	for _, v := range slots {
		if v != nil {
			vectors = append(vectors, *v)
		}
	}
	return vectors, nil
}

// wrapEmbedErr keeps configuration and content errors raised by the
// embedder and treats everything else as retryable.
func wrapEmbedErr(op string, err error) error {
	if IsConfig(err) || IsContent(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

// wrapIndexErr keeps configuration errors raised by the index and treats
// everything else as retryable.
func wrapIndexErr(op string, err error) error {
	if IsConfig(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/config"
	"github.com/xxxsen/aitutor/internal/db"
	"github.com/xxxsen/aitutor/internal/embedcache"
	"github.com/xxxsen/aitutor/internal/filestore"
	"github.com/xxxsen/aitutor/internal/rag"
	"github.com/xxxsen/aitutor/internal/repo"
	"github.com/xxxsen/aitutor/internal/service"
	"github.com/xxxsen/aitutor/internal/vectorindex"
)

// app holds everything the server and the cli commands share.
type app struct {
	db         *sql.DB
	index      rag.VectorIndex
	ingestor   *rag.Ingestor
	embedCache *repo.EmbeddingCacheRepo
	purges     *repo.NamespacePurgeRepo
	auth       *service.AuthService
	documents  *service.DocumentService
	tutor      *service.TutorService
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sqlDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a := &app{db: sqlDB}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config) error {
	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		return err
	}
	manager := ai.NewManager(generator, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	a.embedCache = repo.NewEmbeddingCacheRepo(a.db)
	a.purges = repo.NewNamespacePurgeRepo(a.db)

	embedder, err := buildEmbedder(cfg.Embed, a.embedCache)
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Embed.Timeout)*time.Second)
	dim, err := rag.ProbeDimension(probeCtx, embedder)
	cancel()
	if err != nil {
		return fmt.Errorf("probe embedder: %w", err)
	}

	a.index, err = vectorindex.New(cfg.VectorIndex, vectorindex.Deps{DB: a.db})
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	if err := a.index.EnsureReady(ctx, dim); err != nil {
		return fmt.Errorf("prepare vector index: %w", err)
	}
	logutil.GetLogger(ctx).Info("vector index ready",
		zap.String("type", cfg.VectorIndex.Type),
		zap.String("embed_model", embedder.ModelName()),
		zap.Int("dimension", dim),
	)

	a.ingestor = rag.NewIngestor(embedder, a.index, rag.IngestorConfig{
		ChunkSize:   cfg.RAG.ChunkSize,
		Concurrency: cfg.RAG.EmbedConcurrency,
		Timeout:     time.Duration(cfg.RAG.IngestTimeout) * time.Second,
	})
	retriever := rag.NewRetriever(embedder, a.index, rag.RetrieverConfig{
		TopK:    rag.DefaultTopK,
		Timeout: time.Duration(cfg.RAG.RetrieveTimeout) * time.Second,
	})

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	a.auth = service.NewAuthService(repo.NewUserRepo(a.db), []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	a.documents = service.NewDocumentService(service.DocumentServiceDeps{
		Documents: repo.NewDocumentRepo(a.db),
		Purges:    a.purges,
		Files:     store,
		Ingestor:  a.ingestor,
		Retriever: retriever,
		Answerer:  manager,
	})
	a.tutor = service.NewTutorService(service.TutorServiceDeps{
		Quizzes:        repo.NewQuizRepo(a.db),
		Responses:      repo.NewAIResponseRepo(a.db),
		Attempts:       repo.NewAttemptRepo(a.db),
		Model:          manager,
		QuickCacheSize: 512,
		QuickCacheTTL:  time.Hour,
	})
	return nil
}

func (a *app) Close() {
	if closer, ok := a.index.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logutil.GetLogger(context.Background()).Error("close vector index failed", zap.Error(err))
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfg.Fallbacks)+1)
	for i, item := range append([]config.ProviderConfig{cfg.ProviderConfig}, cfg.Fallbacks...) {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("init ai provider: %w", err)
			}
			logutil.GetLogger(context.Background()).Warn("skip fallback ai provider",
				zap.String("provider", item.Provider), zap.Error(err))
			continue
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      item.Provider + "/" + item.Model,
			Generator: ai.NewGenerator(provider, item.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg config.EmbedConfig, cache embedcache.Store) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	var embedder ai.IEmbedder = ai.NewEmbedder(provider, cfg.Model, cfg.Dimension, cfg.TaskType)
	if cfg.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cache)
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.CacheSize, time.Duration(cfg.CacheTTLHours)*time.Hour), nil
}

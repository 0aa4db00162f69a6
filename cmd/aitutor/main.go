package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/config"
	"github.com/xxxsen/aitutor/internal/handler"
	"github.com/xxxsen/aitutor/internal/job"
	"github.com/xxxsen/aitutor/internal/middleware"
	"github.com/xxxsen/aitutor/internal/schedule"
)

func main() {
	var configPath string
	var envPath string

	rootCmd := &cobra.Command{
		Use:   "aitutor",
		Short: "ai tutor backend server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "optional dotenv file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run aitutor server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	reingestCmd := &cobra.Command{
		Use:   "reingest",
		Short: "re-embed every stored document, e.g. after an embedding model change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}
			return runReingest(cfg)
		},
	}

	rootCmd.AddCommand(runCmd, reingestCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath, envPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	if err := config.LoadEnv(envPath); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("vector_index", cfg.VectorIndex.Type),
		zap.String("embed_provider", cfg.Embed.Provider),
	)

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.Add(schedule.Entry{
		Job:  job.NewEmbeddingCacheCleanupJob(a.embedCache, cfg.Jobs.EmbeddingCacheMaxDays),
		Spec: cfg.Jobs.EmbeddingCacheCleanup,
	}); err != nil {
		return fmt.Errorf("schedule embedding cache cleanup: %w", err)
	}
	if err := scheduler.Add(schedule.Entry{
		Job:        job.NewNamespacePurgeJob(a.purges, a.ingestor),
		Spec:       cfg.Jobs.NamespacePurge,
		Timeout:    5 * time.Minute,
		RunOnStart: true,
	}); err != nil {
		return fmt.Errorf("schedule namespace purge: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Auth:        handler.NewAuthHandler(a.auth),
		Documents:   handler.NewDocumentHandler(a.documents, cfg.RAG.MaxUploadMB*1024*1024),
		Tutor:       handler.NewTutorHandler(a.tutor),
		Sessions:    a.auth,
		AskInterval: time.Duration(cfg.RAG.AskIntervalMS) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runReingest(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.documents.ReingestAll(ctx)
	if err != nil {
		return fmt.Errorf("reingest: %w", err)
	}
	logutil.GetLogger(ctx).Info("reingest finished",
		zap.Int("documents", report.Total),
		zap.Int("failed", report.Failed),
		zap.Int("chunks", report.Chunks),
	)
	if report.Failed > 0 {
		return fmt.Errorf("reingest: %d of %d documents failed", report.Failed, report.Total)
	}
	return nil
}

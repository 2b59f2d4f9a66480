package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
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

	"github.com/pathweaver/pathweaver/internal/ai"
	"github.com/pathweaver/pathweaver/internal/config"
	"github.com/pathweaver/pathweaver/internal/db"
	"github.com/pathweaver/pathweaver/internal/embedcache"
	"github.com/pathweaver/pathweaver/internal/handler"
	"github.com/pathweaver/pathweaver/internal/job"
	"github.com/pathweaver/pathweaver/internal/middleware"
	"github.com/pathweaver/pathweaver/internal/repo"
	"github.com/pathweaver/pathweaver/internal/schedule"
	"github.com/pathweaver/pathweaver/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pathweaver",
		Short: "learning path retrieval and materialization server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run pathweaver server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
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

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("generator", cfg.AI.Generator.Provider),
		zap.String("embedder", cfg.AI.Embedder.Provider),
	)

	chunkRepo := repo.NewChunkRepo(conn, cfg.Search.ClientSideFallback)
	pathRepo := repo.NewPathRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	genProvider, err := ai.NewProvider(cfg.AI.Generator.Provider, cfg.AI.Generator.Data)
	if err != nil {
		return fmt.Errorf("init generator provider: %w", err)
	}
	embProvider, err := ai.NewProvider(cfg.AI.Embedder.Provider, cfg.AI.Embedder.Data)
	if err != nil {
		return fmt.Errorf("init embedder provider: %w", err)
	}

	// One breaker per generative backend, shared by every call site.
	breaker := ai.NewBreaker(
		cfg.Breaker.FailureThreshold,
		time.Duration(cfg.Breaker.RecoveryTimeoutSeconds)*time.Second,
	)
	generator := ai.NewResilientGenerator(
		ai.NewGenerator(genProvider, cfg.AI.Generator.Model),
		breaker,
	)
	embedder := embedcache.NewLRUEmbedder(
		embedcache.NewDBEmbedder(ai.NewEmbedder(embProvider, cfg.AI.Embedder.Model), cacheRepo),
		4096,
		2*time.Hour,
	)
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	pathService := service.NewPathService(manager, chunkRepo, pathRepo, service.PathConfig{
		DefaultMinScore: cfg.Search.DefaultMinScore,
		MaxLimit:        cfg.Search.MaxLimit,
		ExpandSentences: cfg.Search.ExpandSentences,
		QuestionWorkers: cfg.Search.QuestionWorkers,
		PrereqMaxDepth:  cfg.Search.PrereqMaxDepth,
	})

	deps := handler.RouterDeps{
		Paths:            handler.NewPathHandler(pathService),
		JWTSecret:        []byte(cfg.JWTSecret),
		CreateRateWindow: 3 * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(
		job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Jobs.EmbeddingCacheMaxAgeDays),
		cfg.Jobs.EmbeddingCacheCleanupSpec,
		10*time.Minute,
	); err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	srv := &http.Server{Handler: engine}
	if err := serveAndDrain(ctx, srv, listener, 15*time.Second); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("server stopped")
	return nil
}

// serveAndDrain serves until ctx is cancelled, then shuts the server down
// gracefully so in-flight requests finish within drainTimeout.
func serveAndDrain(ctx context.Context, srv *http.Server, listener net.Listener, drainTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

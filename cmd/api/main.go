// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/app"
	"github.com/yourusername/campaign-forge/internal/campaign"
	"github.com/yourusername/campaign-forge/internal/config"
	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/ratelimit"
	"github.com/yourusername/campaign-forge/internal/storage"
)

const (
	serviceName     = "campaign-forge-api"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Hour
	wakeTimeout     = 5 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize server", zap.Error(err))
	}
	defer srv.Close()

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{"Retry-After", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, srv)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting API server",
			zap.String("addr", httpServer.Addr),
			zap.String("gin_mode", cfg.GinMode),
			zap.String("mode", srv.service.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// server はルーティングに必要な依存関係をまとめたものです。
type server struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    jobs.StatusStore
	local    *storage.LocalStore
	pipeline *campaign.Pipeline
	service  *campaign.Service
	limiter  *ratelimit.Window
	queue    queueStats
	closers  []func() error
}

// queueStats はキューの滞留状況を返します。同期モードでは nil です。
type queueStats interface {
	Stats(ctx context.Context) (*jobs.QueueStats, error)
}

// newServer は Redis の疎通を確認し、非同期モードか同期モードかを決めて組み立てます。
func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server, error) {
	s := &server{
		cfg:     cfg,
		logger:  logger,
		limiter: ratelimit.NewWindow(cfg.RateLimitMaxCalls, cfg.RateLimitWindow()),
	}

	blobs, local, err := app.OpenBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.local = local
	if local != nil {
		go storage.NewSweeper(local, cfg.BlobRetention(), sweepInterval, logger.Named("sweeper")).Start(ctx)
	}

	var dispatcher campaign.Dispatcher
	rdb, err := app.ConnectRedis(ctx, cfg.QueueRedisURL)
	if err == nil {
		store := jobs.NewRedisStore(rdb, cfg.JobTTL())
		manager, err := jobs.NewManager(app.ManagerOptions(cfg), logger.Named("queue"))
		if err != nil {
			store.Close()
			return nil, err
		}
		s.store = store
		s.queue = manager
		s.closers = append(s.closers, manager.Close, store.Close)
		s.pipeline = app.NewPipeline(ctx, cfg, store, blobs, logger)

		var waker jobs.WakeSignaler
		if cfg.WorkerWakeURL != "" {
			waker = jobs.NewHTTPWakeSignaler(cfg.WorkerWakeURL, wakeTimeout)
		}
		dispatcher = campaign.NewAsyncDispatcher(store, manager, waker, logger.Named("dispatch"))
	} else {
		logger.Warn("queue unavailable; running jobs synchronously", zap.Error(err))
		store, err := jobs.OpenSQLiteStore(ctx, cfg.StatusDBPath)
		if err != nil {
			return nil, err
		}
		s.store = store
		s.closers = append(s.closers, store.Close)
		s.pipeline = app.NewPipeline(ctx, cfg, store, blobs, logger)
		dispatcher = campaign.NewSyncDispatcher(store, s.pipeline)

		// 同期モードでは API プロセスが途中で落ちたジョブを回収する
		go jobs.NewReaper(store, cfg.StaleJobAfter(), cfg.ReapInterval(), logger.Named("reaper")).Start(ctx)
	}

	s.service = campaign.NewService(blobs, s.limiter, dispatcher, campaign.ServiceOptions{
		MaxFileSize:    cfg.MaxFileSize,
		NativeLanguage: cfg.NativeLanguage,
	}, logger.Named("service"))
	return s, nil
}

// Close は保持しているクライアントを閉じます。
func (s *server) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// setupRoutes はエンドポイントを登録します。
func setupRoutes(router *gin.Engine, s *server) {
	router.GET("/health", handleHealth)
	router.GET("/status", statusHandler(s))

	router.POST("/generate-campaign", campaign.GenerateHandler(s.service, s.cfg.MaxFileSize))
	router.GET("/job-status/:id", jobStatusHandler(s.store))
	router.GET("/example-campaign", campaign.ExampleHandler(s.pipeline))
	router.GET("/campaign-complexities", campaign.ComplexitiesHandler())
	router.GET("/supported-languages", campaign.LanguagesHandler())

	// S3 の場合は署名付きURLから直接取得する
	if s.local != nil {
		router.GET(storage.DownloadRoute+"/*key", downloadHandler(s.local))
	}
}

// requestLogger はリクエストごとに1行のアクセスログを出力します。
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

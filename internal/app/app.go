// Package app はAPIサーバーとワーカーで共通の依存関係を組み立てます。
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/campaign"
	"github.com/yourusername/campaign-forge/internal/config"
	"github.com/yourusername/campaign-forge/internal/genai"
	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/pdf"
	"github.com/yourusername/campaign-forge/internal/storage"
)

// redisPingTimeout は起動時の Redis 疎通確認の待ち時間です。
const redisPingTimeout = 3 * time.Second

// NewLogger は実行モードに応じたロガーを作成します。
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.GinMode == gin.ReleaseMode {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ConnectRedis は Redis に接続し、疎通を確認します。
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis is unreachable: %w", err)
	}
	return rdb, nil
}

// OpenBlobStore は設定された種別の BlobStore を作成します。
// ローカル保存の場合は配信用に *storage.LocalStore も返します。
func OpenBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, *storage.LocalStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.S3Endpoint,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PresignExpiry:   cfg.PresignExpiry(),
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		local, err := storage.NewLocalStore(cfg.LocalBlobDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

// NewPipeline は外部サービスのクライアントを含めてパイプラインを組み立てます。
// APIキーが無いサービスは使わずに代替動作になります。
func NewPipeline(ctx context.Context, cfg *config.Config, store jobs.StatusStore, blobs storage.BlobStore, logger *zap.Logger) *campaign.Pipeline {
	deps := campaign.PipelineDeps{
		Store:     store,
		Blobs:     blobs,
		Extractor: pdf.NewExtractor(),
	}

	generator, err := genai.NewGeminiClient(ctx, genai.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GeneratorTimeout(),
	}, logger.Named("gemini"))
	if err != nil {
		logger.Warn("generator unavailable; campaigns will use built-in examples", zap.Error(err))
	} else {
		deps.Generator = generator
	}

	translator, err := genai.NewTranslator(ctx, genai.TranslatorConfig{
		APIKey:  cfg.TranslateAPIKey,
		Timeout: cfg.TranslateTimeout(),
	}, logger.Named("translate"))
	if err != nil {
		logger.Warn("translator unavailable; campaigns stay in the native language", zap.Error(err))
	} else {
		deps.Translator = translator
	}

	return campaign.NewPipeline(deps, campaign.PipelineOptions{
		MaxPages:           cfg.MaxPages,
		MinTextLength:      cfg.MinTextLength,
		PromptCharLimit:    cfg.PromptCharLimit,
		NativeLanguage:     cfg.NativeLanguage,
		TranslateChunkSize: cfg.TranslateChunkSize,
		TranslateDelay:     cfg.TranslateDelay(),
		GeneratorTimeout:   cfg.GeneratorTimeout(),
		WorkDir:            cfg.WorkDir,
	}, logger.Named("pipeline"))
}

// ManagerOptions は設定からキュー設定を作成します。
func ManagerOptions(cfg *config.Config) jobs.ManagerOptions {
	return jobs.ManagerOptions{
		RedisURL:    cfg.QueueRedisURL,
		MaxRetry:    cfg.QueueMaxRetry,
		Timeout:     cfg.JobTimeout(),
		Concurrency: cfg.WorkerConcurrency,
	}
}

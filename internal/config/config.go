// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blob ストレージの種別
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port          string // APIサーバーのポート番号
	GinMode       string // Ginの実行モード (debug, release, test)
	PublicBaseURL string // ダウンロードURLを組み立てる際のベースURL

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 入力制限
	MaxFileSize     int64 // 単一ファイルの最大サイズ（バイト）
	MaxPages        int   // 単一ファイルの最大ページ数
	MinTextLength   int   // 抽出テキストの最小文字数（これ未満は画像PDFとみなす）
	PromptCharLimit int   // 生成サービスへ送るテキストの上限文字数

	// レート制限
	RateLimitMaxCalls      int // ウィンドウ内で受け付ける最大リクエスト数
	RateLimitWindowSeconds int // スライディングウィンドウの長さ（秒）

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq / ステータスストア用Redis接続URL（空なら同期モード）
	QueueMaxRetry       int    // ワーカー異常終了時の再配送回数
	JobTimeoutMinutes   int    // 1ジョブあたりの安全上限時間（分）
	JobExpireHours      int    // ジョブ記録の保持時間（時間）
	WorkerConcurrency   int    // 1ワーカープロセスの同時実行数
	WorkerWakeURL       string // ワーカー起動通知用Webhook（任意）
	StaleJobMinutes     int    // processing のまま更新が止まったジョブを回収するまでの時間（分）
	ReapIntervalMinutes int    // 回収処理の実行間隔（分）
	StatusDBPath        string // Redisが使えない場合のSQLiteステータスDB

	// Blobストレージ設定
	BlobBackend          string // local または s3
	LocalBlobDir         string // ローカル保存先ディレクトリ
	BlobRetentionHours   int    // ローカル保存ファイルの保持時間（時間）
	S3Bucket             string // S3バケット名
	AWSRegion            string // AWSリージョン
	S3Endpoint           string // S3互換ストレージのエンドポイント
	S3ForcePathStyle     bool   // パススタイルURLを強制するか
	AWSAccessKeyID       string // 明示的なアクセスキー
	AWSSecretAccessKey   string // 明示的なシークレットキー
	PresignExpiryMinutes int    // 署名付きURLの有効期限（分）

	// 生成/翻訳サービス設定
	GeminiAPIKey            string // Gemini APIキー
	GeminiModel             string // 使用するモデル名
	GeneratorTimeoutSeconds int    // 生成呼び出しのタイムアウト（秒）
	TranslateAPIKey         string // Cloud Translation APIキー
	TranslateTimeoutSeconds int    // 翻訳呼び出しのタイムアウト（秒）
	TranslateChunkSize      int    // 翻訳1回あたりの最大文字数
	TranslateDelayMillis    int    // 翻訳呼び出し間の待機時間（ミリ秒）
	NativeLanguage          string // 生成サービスの出力言語

	// 作業ディレクトリ
	WorkDir string // パイプラインの一時作業領域（空ならOSの一時ディレクトリ）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// 入力制限
		MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 52428800), // 50MB
		MaxPages:        getEnvAsInt("MAX_PAGES", 500),
		MinTextLength:   getEnvAsInt("MIN_TEXT_LENGTH", 100),
		PromptCharLimit: getEnvAsInt("PROMPT_CHAR_LIMIT", 15000),

		// レート制限
		RateLimitMaxCalls:      getEnvAsInt("RATE_LIMIT_MAX_CALLS", 3),
		RateLimitWindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),

		// ジョブ/キュー設定
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueMaxRetry:       getEnvAsInt("QUEUE_MAX_RETRY", 1),
		JobTimeoutMinutes:   getEnvAsInt("JOB_TIMEOUT_MINUTES", 360),
		JobExpireHours:      getEnvAsInt("JOB_EXPIRE_HOURS", 24),
		WorkerConcurrency:   getEnvAsInt("WORKER_CONCURRENCY", 1),
		WorkerWakeURL:       getEnv("WORKER_WAKE_URL", ""),
		StaleJobMinutes:     getEnvAsInt("STALE_JOB_MINUTES", 30),
		ReapIntervalMinutes: getEnvAsInt("REAP_INTERVAL_MINUTES", 5),
		StatusDBPath:        getEnv("STATUS_DB_PATH", "data/jobs.db"),

		// Blobストレージ設定
		BlobBackend:          strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendLocal)),
		LocalBlobDir:         getEnv("LOCAL_BLOB_DIR", "data/blobs"),
		BlobRetentionHours:   getEnvAsInt("BLOB_RETENTION_HOURS", 24),
		S3Bucket:             getEnv("S3_BUCKET_NAME", ""),
		AWSRegion:            getEnv("AWS_REGION", ""),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3ForcePathStyle:     getEnvAsBool("S3_FORCE_PATH_STYLE", false),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PresignExpiryMinutes: getEnvAsInt("PRESIGN_EXPIRY_MINUTES", 60),

		// 生成/翻訳サービス設定
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		GeneratorTimeoutSeconds: getEnvAsInt("GENERATOR_TIMEOUT_SECONDS", 120),
		TranslateAPIKey:         getEnv("TRANSLATE_API_KEY", ""),
		TranslateTimeoutSeconds: getEnvAsInt("TRANSLATE_TIMEOUT_SECONDS", 30),
		TranslateChunkSize:      getEnvAsInt("TRANSLATE_CHUNK_SIZE", 4000),
		TranslateDelayMillis:    getEnvAsInt("TRANSLATE_DELAY_MS", 500),
		NativeLanguage:          getEnv("NATIVE_LANGUAGE", "en"),

		WorkDir: getEnv("WORK_DIR", ""),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case BlobBackendLocal:
		if c.LocalBlobDir == "" {
			return fmt.Errorf("LOCAL_BLOB_DIR is required when BLOB_BACKEND=local")
		}
	case BlobBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required when BLOB_BACKEND=s3")
		}
		if (c.AWSAccessKeyID != "") != (c.AWSSecretAccessKey != "") {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND: %s", c.BlobBackend)
	}

	if c.RateLimitMaxCalls <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_CALLS must be positive")
	}
	if c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.PublicBaseURL == "" && c.BlobBackend == BlobBackendLocal {
			return fmt.Errorf("PUBLIC_BASE_URL is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
	}

	return nil
}

// GeneratorConfigured は生成サービスのAPIキーが有効そうかを返します。
func (c *Config) GeneratorConfigured() bool {
	key := strings.TrimSpace(c.GeminiAPIKey)
	return key != "" && key != "your_key_here" && len(key) > 10
}

// RateLimitWindow はレート制限ウィンドウを返します。
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// JobTTL はジョブ記録の保持時間を返します。
func (c *Config) JobTTL() time.Duration {
	return hoursOr(c.JobExpireHours, 24)
}

// JobTimeout は1ジョブあたりの安全上限時間を返します。
func (c *Config) JobTimeout() time.Duration {
	return minutesOr(c.JobTimeoutMinutes, 360)
}

// StaleJobAfter は processing ジョブを孤立とみなすまでの時間を返します。
func (c *Config) StaleJobAfter() time.Duration {
	return minutesOr(c.StaleJobMinutes, 30)
}

// ReapInterval は孤立ジョブ回収の実行間隔を返します。
func (c *Config) ReapInterval() time.Duration {
	return minutesOr(c.ReapIntervalMinutes, 5)
}

// BlobRetention はローカルBlobの保持時間を返します。
func (c *Config) BlobRetention() time.Duration {
	return hoursOr(c.BlobRetentionHours, 24)
}

// PresignExpiry は署名付きURLの有効期限を返します。
func (c *Config) PresignExpiry() time.Duration {
	return minutesOr(c.PresignExpiryMinutes, 60)
}

// GeneratorTimeout は生成呼び出しのタイムアウトを返します。
func (c *Config) GeneratorTimeout() time.Duration {
	return secondsOr(c.GeneratorTimeoutSeconds, 120)
}

// TranslateTimeout は翻訳呼び出しのタイムアウトを返します。
func (c *Config) TranslateTimeout() time.Duration {
	return secondsOr(c.TranslateTimeoutSeconds, 30)
}

// TranslateDelay は翻訳呼び出し間の待機時間を返します。
func (c *Config) TranslateDelay() time.Duration {
	if c.TranslateDelayMillis < 0 {
		return 0
	}
	return time.Duration(c.TranslateDelayMillis) * time.Millisecond
}

func hoursOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Hour
}

func minutesOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Minute
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

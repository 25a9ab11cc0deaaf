// Package genai は外部の生成サービス（Gemini）と翻訳サービス（Cloud Translation）のクライアントです。
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gogenai "google.golang.org/genai"
)

// ErrNotConfigured はAPIキーが設定されていないことを表します。
var ErrNotConfigured = errors.New("generator is not configured")

// GeminiConfig は GeminiClient の設定です。BaseURL が空の場合は SDK の既定値を使います。
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiClient は Gemini SDK で generateContent を呼び出すクライアントです。
type GeminiClient struct {
	cfg    GeminiConfig
	models *gogenai.Models
	log    *zap.Logger
}

// NewGeminiClient は GeminiClient を作成します。APIキーが無い場合は ErrNotConfigured を返します。
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &GeminiClient{cfg: cfg, log: logger}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	client, err := gogenai.NewClient(ctx, &gogenai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gogenai.BackendGeminiAPI,
		HTTPOptions: gogenai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: &cfg.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

// Configured はAPIキーが有効そうかを返します。
func (c *GeminiClient) Configured() bool {
	key := strings.TrimSpace(c.cfg.APIKey)
	return key != "" && key != "your_key_here" && len(key) > 10
}

// Generate はプロンプトを送り、生成されたテキストを返します。
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.models == nil {
		return "", ErrNotConfigured
	}
	rid := uuid.NewString()
	start := time.Now()
	c.log.Info("genai.generate.start",
		zap.String("req_id", rid),
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)))

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, gogenai.Text(prompt), nil)
	if err != nil {
		c.log.Warn("genai.generate.error",
			zap.String("req_id", rid),
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in gemini response")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty gemini response (finish reason %q)", resp.Candidates[0].FinishReason)
	}

	c.log.Info("genai.generate.ok",
		zap.String("req_id", rid),
		zap.Int("text_len", len(text)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return text, nil
}

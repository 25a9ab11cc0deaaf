package genai

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"
)

// Translator は Cloud Translation API (v2) で1チャンクずつ翻訳します。
type Translator struct {
	svc     *translate.Service
	timeout time.Duration
	log     *zap.Logger
}

// TranslatorConfig は Translator の設定です。
type TranslatorConfig struct {
	APIKey  string
	Timeout time.Duration
	// Endpoint はテストや互換サーバー向けに上書きする場合のみ指定します。
	Endpoint string
}

// NewTranslator は Translator を作成します。
func NewTranslator(ctx context.Context, cfg TranslatorConfig, logger *zap.Logger) (*Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &Translator{svc: svc, timeout: cfg.Timeout, log: logger}, nil
}

// Translate は text を target 言語に翻訳します。
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.svc.Translations.Translate(&translate.TranslateTextRequest{
		Q:      []string{text},
		Target: target,
		Format: "text",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", target, err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("translate to %s: empty response", target)
	}

	t.log.Debug("genai.translate.ok",
		zap.String("target", target),
		zap.Int("chars", len(text)),
		zap.String("detected", resp.Translations[0].DetectedSourceLanguage))
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}

// Package main はキャンペーン生成ワーカーのエントリーポイントです。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/app"
	"github.com/yourusername/campaign-forge/internal/config"
	"github.com/yourusername/campaign-forge/internal/jobs"
)

var rootCmd = &cobra.Command{
	Use:   "campaign-worker",
	Short: "Process queued campaign generation jobs",
	Long: `campaign-worker consumes campaign:generate tasks from the Redis queue,
runs the generation pipeline and records the result in the status store.

Running it without a subcommand is the same as "campaign-worker run".`,
	SilenceUsage: true,
	RunE:         runWorker,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap は設定とロガーを読み込みます。
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStatusStore は Redis が使えればそれを、使えなければ SQLite のステータスDBを開きます。
func openStatusStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobs.StatusStore, error) {
	rdb, err := app.ConnectRedis(ctx, cfg.QueueRedisURL)
	if err == nil {
		return jobs.NewRedisStore(rdb, cfg.JobTTL()), nil
	}
	logger.Warn("redis unavailable; using the sqlite status store", zap.Error(err))
	return jobs.OpenSQLiteStore(ctx, cfg.StatusDBPath)
}

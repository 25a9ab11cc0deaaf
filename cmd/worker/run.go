package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/app"
	"github.com/yourusername/campaign-forge/internal/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the queue consumer and the stale-job reaper",
	Long: `Start consuming campaign:generate tasks until interrupted.

The reaper runs alongside the consumer and marks jobs that stayed in
"processing" longer than STALE_JOB_MINUTES as failed (ORPHANED_JOB).`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("concurrency", 0, "Override WORKER_CONCURRENCY")
	runCmd.Flags().Bool("no-reaper", false, "Do not run the stale-job reaper in this process")
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	noReaper, _ := cmd.Flags().GetBool("no-reaper")

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if concurrency > 0 {
		cfg.WorkerConcurrency = concurrency
	}

	// キューは Redis 必須
	rdb, err := app.ConnectRedis(ctx, cfg.QueueRedisURL)
	if err != nil {
		return fmt.Errorf("worker requires the queue: %w", err)
	}
	store := jobs.NewRedisStore(rdb, cfg.JobTTL())
	defer store.Close()

	blobs, _, err := app.OpenBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	manager, err := jobs.NewManager(app.ManagerOptions(cfg), logger.Named("queue"))
	if err != nil {
		return err
	}
	defer manager.Close()

	pipeline := app.NewPipeline(ctx, cfg, store, blobs, logger)
	worker := jobs.NewWorker(store, pipeline, logger.Named("worker"))

	if !noReaper {
		go jobs.NewReaper(store, cfg.StaleJobAfter(), cfg.ReapInterval(), logger.Named("reaper")).Start(ctx)
	}

	logger.Info("worker starting",
		zap.String("queue", jobs.QueueName),
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("job_timeout", cfg.JobTimeout()))
	return manager.Run(ctx, worker)
}

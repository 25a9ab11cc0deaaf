package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/campaign-forge/internal/jobs"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Mark stale processing jobs as failed once and exit",
	Long: `Run a single reaper sweep. Useful from cron when no long-running worker
process hosts the reaper.

Examples:
  # Use STALE_JOB_MINUTES from the environment
  campaign-worker reap

  # Treat jobs idle for more than 10 minutes as orphaned
  campaign-worker reap --stale-after 10m`,
	RunE: runReap,
}

func init() {
	rootCmd.AddCommand(reapCmd)
	reapCmd.Flags().Duration("stale-after", 0, "Override STALE_JOB_MINUTES")
}

func runReap(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if staleAfter <= 0 {
		staleAfter = cfg.StaleJobAfter()
	}

	store, err := openStatusStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reaped, err := jobs.NewReaper(store, staleAfter, time.Minute, logger.Named("reaper")).SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reaped %d job(s)\n", reaped)
	return nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CodeOrphanedJob は処理中のまま放置されたジョブに付与するエラーコードです。
const CodeOrphanedJob = "ORPHANED_JOB"

const reapBatchSize = 100

// Reaper は processing のまま更新が止まったジョブを failed に移します。
type Reaper struct {
	store      StatusStore
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewReaper は Reaper を作成します。
func NewReaper(store StatusStore, staleAfter, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:      store,
		staleAfter: staleAfter,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Start は ctx が終了するまで定期的に SweepOnce を実行します。
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper.started",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.staleAfter))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper.stopped")
			return
		case <-ticker.C:
			if _, err := r.SweepOnce(ctx); err != nil {
				r.logger.Error("reaper.sweep", zap.Error(err))
			}
		}
	}
}

// SweepOnce は一回分の回収を行い、failed にしたジョブ数を返します。
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.store.ListStale(ctx, StatusProcessing, cutoff, reapBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	reaped := 0
	for _, record := range stale {
		data := map[string]any{
			"error": fmt.Sprintf("job stopped reporting progress at %s", record.LastUpdated.Format(time.RFC3339)),
			"code":  CodeOrphanedJob,
		}
		if progress, ok := record.Data["progress"]; ok {
			data["last_progress"] = progress
		}
		err := r.store.Put(ctx, record.JobID, StatusFailed, data)
		if errors.Is(err, ErrInvalidTransition) {
			// 直前に終端へ進んだ
			continue
		}
		if err != nil {
			return reaped, fmt.Errorf("reap job %s: %w", record.JobID, err)
		}
		reaped++
		r.logger.Warn("reaper.job_failed",
			zap.String("job_id", record.JobID),
			zap.Time("last_updated", record.LastUpdated))
	}
	return reaped, nil
}

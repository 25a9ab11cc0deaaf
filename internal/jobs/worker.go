// Package jobs は非同期ジョブ管理機能を提供します。
//
// ジョブ状態は StatusStore（Redis または SQLite）に保存し、キューには Asynq を使用します。
// 状態は queued → processing → completed / failed の順にのみ進みます。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker はキューから受け取ったタスクを Processor に渡します。
type Worker struct {
	store     StatusStore
	processor Processor
	logger    *zap.Logger
}

// NewWorker は Worker を作成します。
func NewWorker(store StatusStore, processor Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:     store,
		processor: processor,
		logger:    logger,
	}
}

// HandleTask は asynq のハンドラです。
// パイプラインの失敗はジョブ記録に残すため、nil を返して再試行させません。
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var desc Descriptor
	if err := json.Unmarshal(task.Payload(), &desc); err != nil {
		return fmt.Errorf("decode descriptor: %v: %w", err, asynq.SkipRetry)
	}
	if desc.JobID == "" {
		return fmt.Errorf("missing job_id in payload: %w", asynq.SkipRetry)
	}

	// 再配送されたタスクが既に終端であれば何もしない
	if record, err := w.store.Get(ctx, desc.JobID); err == nil && record.Status.Terminal() {
		w.logger.Info("worker.skip_terminal",
			zap.String("job_id", desc.JobID),
			zap.String("status", string(record.Status)))
		return nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load job %s: %w", desc.JobID, err)
	}

	w.run(ctx, &desc)
	return nil
}

func (w *Worker) run(ctx context.Context, desc *Descriptor) {
	start := time.Now()
	log := w.logger.With(zap.String("job_id", desc.JobID))
	log.Info("worker.job.start", zap.String("filename", desc.Filename))

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker.job.panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err := w.store.Put(context.WithoutCancel(ctx), desc.JobID, StatusFailed, map[string]any{
				"error": fmt.Sprintf("unexpected error: %v", r),
				"code":  "INTERNAL_ERROR",
			})
			if err != nil {
				log.Error("worker.job.record_failure", zap.Error(err))
			}
		}
	}()

	result := w.processor.Process(ctx, desc)
	status := StatusFailed
	if result != nil {
		status = result.Status
	}
	log.Info("worker.job.done",
		zap.String("status", string(status)),
		zap.Duration("elapsed", time.Since(start)))
}

package campaign

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/jobs"
)

// 受付モード
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Enqueuer はジョブ記述子をキューへ渡します。
type Enqueuer interface {
	Enqueue(ctx context.Context, desc *jobs.Descriptor) (string, error)
}

// Dispatcher は受付済みジョブの実行方法です。起動時に一度だけ選択します。
type Dispatcher interface {
	Mode() string
	Dispatch(ctx context.Context, desc *jobs.Descriptor) (*jobs.Result, error)
}

// asyncDispatcher はキューに積んで queued を返します。
type asyncDispatcher struct {
	store  jobs.StatusStore
	queue  Enqueuer
	waker  jobs.WakeSignaler
	logger *zap.Logger
}

// NewAsyncDispatcher はキューを使う Dispatcher を作成します。
func NewAsyncDispatcher(store jobs.StatusStore, queue Enqueuer, waker jobs.WakeSignaler, logger *zap.Logger) Dispatcher {
	if waker == nil {
		waker = jobs.NopSignaler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &asyncDispatcher{store: store, queue: queue, waker: waker, logger: logger}
}

func (d *asyncDispatcher) Mode() string { return ModeAsync }

func (d *asyncDispatcher) Dispatch(ctx context.Context, desc *jobs.Descriptor) (*jobs.Result, error) {
	queued := map[string]any{"filename": desc.Filename}
	if err := d.store.Put(ctx, desc.JobID, jobs.StatusQueued, queued); err != nil {
		return nil, newError(CodeStorageError, "could not record the job", err)
	}

	_, err := d.queue.Enqueue(ctx, desc)
	if errors.Is(err, jobs.ErrDuplicateJob) {
		// 同じジョブIDは既にキューにある
		d.logger.Warn("dispatch.duplicate", zap.String("job_id", desc.JobID))
		err = nil
	}
	if err != nil {
		// キューに無い queued ジョブを残さない
		failData := map[string]any{
			"error": "could not enqueue the job",
			"code":  CodeInternalError,
		}
		if putErr := d.store.Put(context.WithoutCancel(ctx), desc.JobID, jobs.StatusFailed, failData); putErr != nil {
			d.logger.Error("dispatch.mark_failed", zap.String("job_id", desc.JobID), zap.Error(putErr))
		}
		return nil, newError(CodeInternalError, "could not enqueue the job", err)
	}

	if err := d.waker.Signal(ctx, desc.JobID); err != nil {
		d.logger.Warn("dispatch.wake_failed", zap.String("job_id", desc.JobID), zap.Error(err))
	}
	return &jobs.Result{JobID: desc.JobID, Status: jobs.StatusQueued}, nil
}

// syncDispatcher はリクエスト内でパイプラインを実行します。
type syncDispatcher struct {
	store    jobs.StatusStore
	pipeline *Pipeline
}

// NewSyncDispatcher はキューを使わない Dispatcher を作成します。
func NewSyncDispatcher(store jobs.StatusStore, pipeline *Pipeline) Dispatcher {
	return &syncDispatcher{store: store, pipeline: pipeline}
}

func (d *syncDispatcher) Mode() string { return ModeSync }

func (d *syncDispatcher) Dispatch(ctx context.Context, desc *jobs.Descriptor) (*jobs.Result, error) {
	if err := d.store.Put(ctx, desc.JobID, jobs.StatusQueued, map[string]any{"filename": desc.Filename}); err != nil {
		return nil, newError(CodeStorageError, "could not record the job", err)
	}
	// クライアントが切断しても途中で止めない
	result := d.pipeline.Run(context.WithoutCancel(ctx), desc)
	if result == nil {
		return nil, fmt.Errorf("pipeline returned no result for job %s", desc.JobID)
	}
	return result, nil
}

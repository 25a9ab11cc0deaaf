package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TaskTypeGenerate はキャンペーン生成タスクの種別です。
	TaskTypeGenerate = "campaign:generate"
	// QueueName はキャンペーン生成タスクを積むキュー名です。
	QueueName = "campaign"
)

// ErrDuplicateJob は同じジョブIDのタスクが既にキューに存在することを表します。
var ErrDuplicateJob = errors.New("job already enqueued")

// ManagerOptions はキュー設定です。
type ManagerOptions struct {
	RedisURL    string
	MaxRetry    int
	Timeout     time.Duration
	Concurrency int
}

// QueueStats はキューの滞留状況です。
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// Manager はジョブの投入とワーカー起動を担います。
type Manager struct {
	opts      ManagerOptions
	redisOpt  asynq.RedisConnOpt
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *zap.Logger
}

// NewManager は Manager を初期化します。
func NewManager(opts ManagerOptions, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}

	return &Manager{
		opts:      opts,
		redisOpt:  redisOpt,
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		logger:    logger,
	}, nil
}

// Enqueue はジョブ記述子をキューに投入し、タスクIDを返します。
func (m *Manager) Enqueue(ctx context.Context, desc *Descriptor) (string, error) {
	if desc == nil {
		return "", fmt.Errorf("descriptor is nil")
	}
	if desc.JobID == "" {
		return "", fmt.Errorf("descriptor.JobID is required")
	}

	body, err := json.Marshal(desc)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.TaskID(desc.JobID),
		asynq.MaxRetry(m.opts.MaxRetry),
	}
	if m.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(m.opts.Timeout))
	}

	task := asynq.NewTask(TaskTypeGenerate, body, opts...)
	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateJob, desc.JobID)
		}
		return "", fmt.Errorf("enqueue job %s: %w", desc.JobID, err)
	}
	m.logger.Info("queue.enqueue",
		zap.String("job_id", desc.JobID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))
	return info.ID, nil
}

// Stats はキューの滞留状況を返します。キューが未作成の場合はゼロ値を返します。
func (m *Manager) Stats(ctx context.Context) (*QueueStats, error) {
	info, err := m.inspector.GetQueueInfo(QueueName)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return &QueueStats{Queue: QueueName}, nil
		}
		return nil, err
	}
	return &QueueStats{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
	}, nil
}

// Run は Asynq サーバーを起動し、ctx がキャンセルされるまでタスクを処理します。
func (m *Manager) Run(ctx context.Context, worker *Worker) error {
	if worker == nil {
		return errors.New("worker is nil")
	}
	server := asynq.NewServer(
		m.redisOpt,
		asynq.Config{
			Concurrency: m.opts.Concurrency,
			Queues: map[string]int{
				QueueName: 1,
			},
			Logger:          m.logger.Sugar(),
			ShutdownTimeout: 30 * time.Second,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeGenerate, worker.HandleTask)

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	m.logger.Info("worker.started",
		zap.String("queue", QueueName),
		zap.Int("concurrency", m.opts.Concurrency))

	<-ctx.Done()
	server.Shutdown()
	m.logger.Info("worker.stopped")
	return nil
}

// Close はクライアントとインスペクタを閉じます。
func (m *Manager) Close() error {
	return errors.Join(m.client.Close(), m.inspector.Close())
}

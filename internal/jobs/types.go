package jobs

import (
	"context"
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrNotFound は指定IDのジョブ記録が存在しないことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition は状態遷移が後退または終端からの変更であることを表します。
	ErrInvalidTransition = errors.New("invalid job status transition")
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// Valid は既知の状態かどうかを返します。
func (s Status) Valid() bool {
	return s.rank() > 0
}

// Terminal は completed / failed のいずれかであれば true を返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition は from から to への遷移が許可されるかを返します。
// 記録が無い場合（from が空）はどの状態でも書き込めます。
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == "" {
		return true
	}
	if from.Terminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID       string         `json:"job_id"`
	Status      Status         `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Descriptor はワーカーに渡すジョブの入力情報です。
type Descriptor struct {
	JobID          string `json:"job_id"`
	InputKey       string `json:"input_key"`
	InputURL       string `json:"input_url,omitempty"`
	Filename       string `json:"filename"`
	TargetLanguage string `json:"target_language"`
	Complexity     string `json:"complexity"`
}

// Result はパイプライン完了時の最終状態です。
type Result struct {
	JobID  string         `json:"job_id"`
	Status Status         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// StatusStore はジョブ状態の永続化を抽象化します。
type StatusStore interface {
	// Put は状態とデータを書き込みます。不正な遷移は ErrInvalidTransition を返します。
	Put(ctx context.Context, jobID string, status Status, data map[string]any) error
	// Get は最新の記録を返します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	// ListStale は status のまま before より前に更新が止まった記録を返します。
	ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]*Record, error)
	Close() error
}

// Processor はジョブ1件分の変換処理を実行します。
type Processor interface {
	Process(ctx context.Context, desc *Descriptor) *Result
}

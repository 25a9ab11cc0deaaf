package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sweeper はローカル保存物のうち保持期間を過ぎたファイルを削除します。
type Sweeper struct {
	root     string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSweeper は LocalStore 用の Sweeper を作成します。
func NewSweeper(store *LocalStore, maxAge, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		root:     store.Root(),
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Start は起動時に一度掃除し、その後 ctx が終了するまで定期実行します。
func (s *Sweeper) Start(ctx context.Context) {
	s.SweepOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce は古いファイルを削除し、削除件数を返します。
func (s *Sweeper) SweepOnce() int {
	now := s.now()
	var (
		deleted int
		freed   int64
	)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("blob.sweep.remove", zap.String("path", path), zap.Error(err))
			return nil
		}
		deleted++
		freed += info.Size()
		return nil
	})
	if err != nil {
		s.logger.Error("blob.sweep", zap.Error(err))
	}
	if deleted > 0 {
		s.logger.Info("blob.sweep.done",
			zap.Int("deleted", deleted),
			zap.Int64("freed_bytes", freed))
	}
	return deleted
}

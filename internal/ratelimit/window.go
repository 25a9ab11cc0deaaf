// Package ratelimit は生成リクエストの受付数を制限するスライディングウィンドウを提供します。
package ratelimit

import (
	"sync"
	"time"
)

// Window は直近 window の間に受け付けた回数が limit を超えないようにします。
// 古い記録は Allow のたびに取り除きます。
type Window struct {
	lock   sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	calls  []time.Time
}

// Option は Window の設定を変更します。
type Option func(*Window)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		w.now = now
	}
}

// NewWindow は Window を作成します。
func NewWindow(limit int, window time.Duration, opts ...Option) *Window {
	if limit <= 0 {
		limit = 1
	}
	w := &Window{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make([]time.Time, 0, limit),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow は1回分の受付を試みます。
// 上限に達している場合は false と、次に枠が空くまでの時間を返します。
func (w *Window) Allow() (bool, time.Duration) {
	w.lock.Lock()
	defer w.lock.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.calls) >= w.limit {
		retryAfter := w.calls[0].Add(w.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	w.calls = append(w.calls, now)
	return true, 0
}

// Remaining は現在の残り受付数を返します。
func (w *Window) Remaining() int {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.prune(w.now())
	return w.limit - len(w.calls)
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

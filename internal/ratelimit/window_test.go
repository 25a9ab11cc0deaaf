package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindowCeilingAndReopen(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(3, time.Minute, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		ok, _ := w.Allow()
		assert.True(t, ok, "call %d", i+1)
		clock.Advance(10 * time.Second)
	}

	ok, retryAfter := w.Allow()
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter, "first call leaves the window 60s after it was made")
	assert.Equal(t, 0, w.Remaining())

	clock.Advance(30 * time.Second)
	ok, _ = w.Allow()
	assert.True(t, ok, "window reopens once the oldest call ages out")

	ok, _ = w.Allow()
	assert.False(t, ok)
}

func TestWindowRetryAfterFloor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(1, time.Second, WithClock(clock.Now))

	ok, _ := w.Allow()
	assert.True(t, ok)
	clock.Advance(900 * time.Millisecond)

	ok, retryAfter := w.Allow()
	assert.False(t, ok)
	assert.Equal(t, time.Second, retryAfter)
}

func TestWindowConcurrent(t *testing.T) {
	w := NewWindow(5, time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

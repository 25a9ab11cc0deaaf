package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// statusStoreContract はどちらの実装でも成り立つべき振る舞いを確認します。
func statusStoreContract(t *testing.T, store StatusStore, setNow func(time.Time)) {
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lifecycle", func(t *testing.T) {
		setNow(base)
		require.NoError(t, store.Put(ctx, "job-1", StatusQueued, nil))

		setNow(base.Add(time.Second))
		require.NoError(t, store.Put(ctx, "job-1", StatusProcessing, map[string]any{"progress": "Extracting text"}))

		setNow(base.Add(2 * time.Second))
		require.NoError(t, store.Put(ctx, "job-1", StatusProcessing, map[string]any{"progress": "Generating"}))

		record, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, record.Status)
		assert.Equal(t, "Generating", record.Data["progress"])
		assert.True(t, record.CreatedAt.Equal(base), "created_at is preserved")
		assert.True(t, record.LastUpdated.Equal(base.Add(2*time.Second)))

		setNow(base.Add(3 * time.Second))
		require.NoError(t, store.Put(ctx, "job-1", StatusCompleted, map[string]any{"storage_key": "campaigns/x.md"}))

		err = store.Put(ctx, "job-1", StatusProcessing, map[string]any{"progress": "late"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		err = store.Put(ctx, "job-1", StatusFailed, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		record, err = store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status)
		assert.Equal(t, "campaigns/x.md", record.Data["storage_key"])
	})

	t.Run("no regression to queued", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "job-2", StatusProcessing, nil))
		err := store.Put(ctx, "job-2", StatusQueued, nil)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("list stale", func(t *testing.T) {
		setNow(base)
		require.NoError(t, store.Put(ctx, "old", StatusProcessing, nil))
		require.NoError(t, store.Put(ctx, "old-queued", StatusQueued, nil))
		setNow(base.Add(time.Hour))
		require.NoError(t, store.Put(ctx, "fresh", StatusProcessing, nil))

		stale, err := store.ListStale(ctx, StatusProcessing, base.Add(30*time.Minute), 10)
		require.NoError(t, err)

		var ids []string
		for _, r := range stale {
			ids = append(ids, r.JobID)
		}
		assert.Contains(t, ids, "old")
		assert.NotContains(t, ids, "fresh")
		assert.NotContains(t, ids, "old-queued")
	})
}

func TestRedisStoreContract(t *testing.T) {
	store, _ := newTestRedisStore(t)
	statusStoreContract(t, store, func(now time.Time) {
		store.now = func() time.Time { return now }
	})
}

func TestRedisStoreStatusIndex(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "job-a", StatusQueued, nil))
	members, err := mr.ZMembers(indexKey(StatusQueued))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a"}, members)

	require.NoError(t, store.Put(ctx, "job-a", StatusProcessing, nil))
	assert.False(t, mr.Exists(indexKey(StatusQueued)), "leaving queued removes the queued entry")
	members, err = mr.ZMembers(indexKey(StatusProcessing))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a"}, members)

	require.NoError(t, store.Put(ctx, "job-a", StatusFailed, map[string]any{"code": "VALIDATION_ERROR"}))
	assert.False(t, mr.Exists(indexKey(StatusProcessing)), "terminal jobs leave every index")

	_, err = store.ListStale(ctx, StatusCompleted, time.Now(), 10)
	assert.Error(t, err)
}

func TestReaperIgnoresQueuedBacklog(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	store.now = func() time.Time { return base }
	for i := 0; i < reapBatchSize+20; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("waiting-%03d", i), StatusQueued, nil))
	}
	store.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, store.Put(ctx, "orphan", StatusProcessing, map[string]any{"progress": "Generating campaign with AI..."}))

	reaper := NewReaper(store, time.Hour, time.Minute, nil)
	reaper.now = func() time.Time { return base.Add(2 * time.Hour) }

	reaped, err := reaper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	orphan, err := store.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, orphan.Status)
	assert.Equal(t, CodeOrphanedJob, orphan.Data["code"])

	waiting, err := store.Get(ctx, "waiting-000")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, waiting.Status)
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "job-ttl", StatusQueued, nil))
	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, "job-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := OpenSQLiteStore(context.Background(), t.TempDir()+"/jobs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	statusStoreContract(t, store, func(now time.Time) {
		store.now = func() time.Time { return now }
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/nested/jobs.db"

	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "job-r", StatusQueued, map[string]any{"filename": "book.pdf"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.Get(ctx, "job-r")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, record.Status)
	assert.Equal(t, "book.pdf", record.Data["filename"])
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{"", StatusQueued, true},
		{"", StatusCompleted, true},
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusFailed, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusQueued, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
		{StatusQueued, Status("done"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%q -> %q", tt.from, tt.to)
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix   = "job:"
	indexKeyPrefix = "jobs:"
	maxTxAttempts  = 16
)

// activeStatuses は索引を持つ非終端の状態です。
var activeStatuses = []Status{StatusQueued, StatusProcessing}

// RedisStore はジョブ状態を Redis に保存します。
// 非終端のジョブは状態ごとに last_updated をスコアとするソート済みセットにも登録します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	return s.load(ctx, s.rdb, jobID)
}

// Put はジョブ情報を保存します（存在しない場合は作成）。
// WATCH で競合を検出し、遷移の検証と書き込みを一つのトランザクションで行います。
func (s *RedisStore) Put(ctx context.Context, jobID string, status Status, data map[string]any) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	key := jobKey(jobID)

	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, jobID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		var from Status
		if current != nil {
			from = current.Status
		}
		if !CanTransition(from, status) {
			return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, from, status, jobID)
		}

		now := s.now()
		record := &Record{
			JobID:       jobID,
			Status:      status,
			Data:        data,
			CreatedAt:   now,
			LastUpdated: now,
		}
		if current != nil && !current.CreatedAt.IsZero() {
			record.CreatedAt = current.CreatedAt
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			// ジョブは常に現在の状態の索引だけに載る
			for _, st := range activeStatuses {
				if st == status {
					pipe.ZAdd(ctx, indexKey(st), redis.Z{
						Score:  float64(now.UnixNano()),
						Member: jobID,
					})
				} else {
					pipe.ZRem(ctx, indexKey(st), jobID)
				}
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job %s: too many concurrent updates", jobID)
}

// ListStale は status のまま before 以前に更新が止まったジョブを返します。
func (s *RedisStore) ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if status.Terminal() || !status.Valid() {
		return nil, fmt.Errorf("status %q is not indexed", status)
	}
	index := indexKey(status)
	ids, err := s.rdb.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", before.UnixNano()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.load(ctx, s.rdb, id)
		if errors.Is(err, ErrNotFound) {
			// TTL で消えた記録は索引からも外す
			s.rdb.ZRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.Status == status {
			records = append(records, record)
		}
	}
	return records, nil
}

// Close は Redis クライアントを閉じます。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// getter は *redis.Client と *redis.Tx の共通部分です。
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, jobID string) (*Record, error) {
	data, err := c.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &record, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func indexKey(status Status) string {
	return indexKeyPrefix + string(status)
}

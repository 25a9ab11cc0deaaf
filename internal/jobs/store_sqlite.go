package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore はジョブ状態をローカルの SQLite に保存します。
// キュー（Redis）が無い同期モードでも /job-status を再起動後まで引けるようにするためのものです。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore は path のデータベースを開き、スキーマを用意します。
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("status db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
			return nil, fmt.Errorf("create status db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open status db: %w", err)
	}
	// 単一コネクションで書き込みを直列化する
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping status db: %w", err)
	}

	s := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			data TEXT,
			created_at INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, last_updated);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init status schema: %w", err)
		}
	}
	return nil
}

// Put はジョブ状態を書き込みます。遷移の検証はトランザクション内で行います。
func (s *SQLiteStore) Put(ctx context.Context, jobID string, status Status, data map[string]any) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode job data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE job_id = ?`, jobID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if !CanTransition(Status(current), status) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, current, status, jobID)
	}

	now := s.now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, status, data, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			last_updated = excluded.last_updated`,
		jobID, string(status), string(payload), now, now)
	if err != nil {
		return fmt.Errorf("write job %s: %w", jobID, err)
	}
	return tx.Commit()
}

// Get はジョブ情報を取得します。
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, status, data, created_at, last_updated FROM jobs WHERE job_id = ?`, jobID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return record, err
}

// ListStale は status のまま before 以前に更新が止まったジョブを返します。
func (s *SQLiteStore) ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, status, data, created_at, last_updated FROM jobs
		WHERE status = ? AND last_updated <= ?
		ORDER BY last_updated ASC
		LIMIT ?`, string(status), before.UnixNano(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close はデータベースを閉じます。
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record      Record
		status      string
		data        sql.NullString
		createdAt   int64
		lastUpdated int64
	)
	if err := row.Scan(&record.JobID, &status, &data, &createdAt, &lastUpdated); err != nil {
		return nil, err
	}
	record.Status = Status(status)
	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.LastUpdated = time.Unix(0, lastUpdated).UTC()
	if data.Valid && data.String != "" && data.String != "null" {
		if err := json.Unmarshal([]byte(data.String), &record.Data); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", record.JobID, err)
		}
	}
	return &record, nil
}

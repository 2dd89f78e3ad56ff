package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"interview-insights-go/internal/types"
)

// SQLiteStore keeps jobs in a single table of JSON documents.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteStore) Write(ctx context.Context, jobID string, u types.JobUpdate) (types.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Job{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := readJob(ctx, tx, jobID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.Job{}, err
	}

	next := merge(cur, found, jobID, u, s.clock())
	data, err := json.Marshal(next)
	if err != nil {
		return types.Job{}, fmt.Errorf("encode job: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO jobs (id, status, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
		jobID, string(next.Stage), string(data), next.UpdatedAt.UnixNano())
	if err != nil {
		return types.Job{}, fmt.Errorf("upsert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Job{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *SQLiteStore) Read(ctx context.Context, jobID string) (types.Job, error) {
	return readJob(ctx, s.db, jobID)
}

// Prune deletes jobs not updated since before.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readJob(ctx context.Context, q queryer, jobID string) (types.Job, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, ErrNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("select job: %w", err)
	}
	var job types.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return types.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

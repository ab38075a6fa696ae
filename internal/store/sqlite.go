// Package store persists the background job history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"jarvis/internal/jobs"
)

// Fixed width so that text order is time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		output      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT,
		error       TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_started ON jobs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`)
	return err
}

func (s *SQLiteStore) JobStarted(ctx context.Context, rec jobs.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, output, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Output, string(rec.Status), rec.Started.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert job %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) JobFinished(ctx context.Context, rec jobs.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(rec.Status), rec.Finished.UTC().Format(timeFormat), rec.Err, rec.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: not found", rec.ID)
	}
	return nil
}

// RecentJobs returns up to limit jobs, newest first.
func (s *SQLiteStore) RecentJobs(ctx context.Context, limit int) ([]jobs.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, output, status, started_at, finished_at, error
		 FROM jobs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Record
	for rows.Next() {
		var (
			rec      jobs.Record
			status   string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Output, &status, &started, &finished, &rec.Err); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Status = jobs.Status(status)
		rec.Started, _ = time.Parse(timeFormat, started)
		if finished.Valid {
			rec.Finished, _ = time.Parse(timeFormat, finished.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkAbandoned flags jobs left running by a previous process.
func (s *SQLiteStore) MarkAbandoned(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = 'process exited', finished_at = ? WHERE status = ?`,
		string(jobs.StatusCancelled), time.Now().UTC().Format(timeFormat), string(jobs.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("mark abandoned: %w", err)
	}
	return res.RowsAffected()
}

package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/job"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS store_meta (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	next_job_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id         INTEGER PRIMARY KEY,
	target_url TEXT NOT NULL
);`

// SQLiteStore keeps the snapshot in a SQLite database. Each Save rewrites
// the tables in one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Persister.
func (s *SQLiteStore) Load(ctx context.Context) (*job.Snapshot, error) {
	snap := &job.Snapshot{Jobs: make(map[int64]job.Job)}

	err := s.db.QueryRowContext(ctx, `SELECT next_job_id FROM store_meta WHERE id = 1`).Scan(&snap.NextJobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read store meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, target_url FROM jobs`)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var j job.Job
		if err := rows.Scan(&j.ID, &j.TargetURL); err != nil {
			return nil, apperrors.Corrupt("jobstore.sqlite.load", err)
		}
		snap.Jobs[j.ID] = j
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	if err := snap.Validate(); err != nil {
		return nil, apperrors.Corrupt("jobstore.sqlite.load", err)
	}
	return snap, nil
}

// Save implements Persister.
func (s *SQLiteStore) Save(ctx context.Context, snap *job.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO store_meta (id, next_job_id) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET next_job_id = excluded.next_job_id`,
		snap.NextJobID,
	); err != nil {
		return fmt.Errorf("write store meta: %w", err)
	}

	// Jobs are never removed, so upserting the full table is enough.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO jobs (id, target_url) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET target_url = excluded.target_url`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, j := range snap.Jobs {
		if _, err = stmt.ExecContext(ctx, j.ID, j.TargetURL); err != nil {
			return fmt.Errorf("write job %d: %w", j.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close implements Persister.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Persister = (*SQLiteStore)(nil)

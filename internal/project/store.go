package project

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped when the schema changes; mismatched databases
// are rejected rather than migrated in place
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE projects (
    id         TEXT PRIMARY KEY,
    video_path TEXT NOT NULL UNIQUE,
    title      TEXT NOT NULL,
    duration   REAL NOT NULL,
    width      INTEGER NOT NULL,
    height     INTEGER NOT NULL,
    opened_at  TEXT NOT NULL,
    saved_at   TEXT
);

CREATE TABLE render_jobs (
    id          TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    output_path TEXT NOT NULL,
    encoder     TEXT NOT NULL,
    state       TEXT NOT NULL,
    progress    REAL NOT NULL DEFAULT 0,
    error       TEXT,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX idx_render_jobs_created ON render_jobs(created_at);
`

// ProjectRecord is one row of project history
type ProjectRecord struct {
	ID        string     `json:"id"`
	VideoPath string     `json:"video_path"`
	Title     string     `json:"title"`
	Duration  float64    `json:"duration"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	OpenedAt  time.Time  `json:"opened_at"`
	SavedAt   *time.Time `json:"saved_at,omitempty"`
}

// RenderJobRecord is one row of render history
type RenderJobRecord struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	OutputPath string    `json:"output_path"`
	Encoder    string    `json:"encoder"`
	State      string    `json:"state"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store keeps project and render-job history in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the history database
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("database %s has schema version %d, expected %d (delete it to recreate)",
			s.path, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// UpsertProject records a project open, keyed by video path so reopening
// the same video updates the existing row
func (s *Store) UpsertProject(ctx context.Context, rec ProjectRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, video_path, title, duration, width, height, opened_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_path) DO UPDATE SET
             title = excluded.title,
             duration = excluded.duration,
             width = excluded.width,
             height = excluded.height,
             opened_at = excluded.opened_at`,
		rec.ID, rec.VideoPath, rec.Title, rec.Duration, rec.Width, rec.Height,
		rec.OpenedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// MarkSaved stamps a project's last save time
func (s *Store) MarkSaved(ctx context.Context, videoPath string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE projects SET saved_at = ? WHERE video_path = ?",
		at.UTC().Format(time.RFC3339Nano), videoPath,
	)
	if err != nil {
		return fmt.Errorf("mark project saved: %w", err)
	}
	return nil
}

// RecentProjects lists projects most recently opened first
func (s *Store) RecentProjects(ctx context.Context, limit int) ([]ProjectRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_path, title, duration, width, height, opened_at, saved_at
         FROM projects ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent projects: %w", err)
	}
	defer rows.Close()

	var records []ProjectRecord
	for rows.Next() {
		var rec ProjectRecord
		var openedAt string
		var savedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.VideoPath, &rec.Title, &rec.Duration,
			&rec.Width, &rec.Height, &openedAt, &savedAt); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		rec.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
		if savedAt.Valid {
			t, parseErr := time.Parse(time.RFC3339Nano, savedAt.String)
			if parseErr == nil {
				rec.SavedAt = &t
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordRenderJob inserts a render job row in the running state
func (s *Store) RecordRenderJob(ctx context.Context, id, sourcePath, outputPath, encoder string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_jobs (id, source_path, output_path, encoder, state, progress, created_at, updated_at)
         VALUES (?, ?, ?, ?, 'running', 0, ?, ?)`,
		id, sourcePath, outputPath, encoder, now, now,
	)
	if err != nil {
		return fmt.Errorf("record render job: %w", err)
	}
	return nil
}

// UpdateRenderJob moves a render job row to a new state
func (s *Store) UpdateRenderJob(ctx context.Context, id, state string, progress float64, errMsg string) error {
	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE render_jobs SET state = ?, progress = ?, error = ?, updated_at = ? WHERE id = ?",
		state, progress, errVal, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update render job: %w", err)
	}
	return nil
}

// RenderHistory lists render jobs newest first
func (s *Store) RenderHistory(ctx context.Context, limit int) ([]RenderJobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, output_path, encoder, state, progress, error, created_at, updated_at
         FROM render_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query render history: %w", err)
	}
	defer rows.Close()

	var records []RenderJobRecord
	for rows.Next() {
		var rec RenderJobRecord
		var errVal sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.SourcePath, &rec.OutputPath, &rec.Encoder,
			&rec.State, &rec.Progress, &errVal, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan render job row: %w", err)
		}
		rec.Error = errVal.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

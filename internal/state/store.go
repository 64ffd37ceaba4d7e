// Package state records save history in a local SQLite database: one row
// per save run plus one row per file written, so `tentacles history` can
// show what changed and when.
package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Save statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPartial   = "partial"
)

// Store is the save-history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and runs pending
// migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging state database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun is one recorded save.
type SaveRun struct {
	ID           string
	PbipPath     string
	Status       string
	WarningCount int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// FileWrite is one file outcome within a save.
type FileWrite struct {
	SaveID   string
	FilePath string
	Status   string
	Detail   string
}

// BeginSave records the start of a save run and returns its id.
func (s *Store) BeginSave(ctx context.Context, pbipPath string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saves (id, pbip_path, status, started_at) VALUES (?, ?, ?, ?)`,
		id, pbipPath, StatusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("recording save start: %w", err)
	}
	return id, nil
}

// CompleteSave marks a run finished with its final status and warning
// count.
func (s *Store) CompleteSave(ctx context.Context, id, status string, warningCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE saves SET status = ?, warning_count = ?, completed_at = ? WHERE id = ?`,
		status, warningCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("recording save completion: %w", err)
	}
	return nil
}

// AddFileWrite records one file outcome for a save run.
func (s *Store) AddFileWrite(ctx context.Context, saveID, filePath, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_writes (save_id, file_path, status, detail) VALUES (?, ?, ?, ?)`,
		saveID, filePath, status, detail)
	if err != nil {
		return fmt.Errorf("recording file write: %w", err)
	}
	return nil
}

// ListSaves returns the most recent save runs, newest first.
func (s *Store) ListSaves(ctx context.Context, limit int) ([]SaveRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pbip_path, status, warning_count, started_at, completed_at
		 FROM saves ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing saves: %w", err)
	}
	defer rows.Close()

	var runs []SaveRun
	for rows.Next() {
		var run SaveRun
		var completed sql.NullTime
		if err := rows.Scan(&run.ID, &run.PbipPath, &run.Status, &run.WarningCount, &run.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning save row: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListFileWrites returns the file outcomes of one save run.
func (s *Store) ListFileWrites(ctx context.Context, saveID string) ([]FileWrite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT save_id, file_path, status, detail FROM file_writes WHERE save_id = ? ORDER BY id`,
		saveID)
	if err != nil {
		return nil, fmt.Errorf("listing file writes: %w", err)
	}
	defer rows.Close()

	var writes []FileWrite
	for rows.Next() {
		var w FileWrite
		if err := rows.Scan(&w.SaveID, &w.FilePath, &w.Status, &w.Detail); err != nil {
			return nil, fmt.Errorf("scanning file write row: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

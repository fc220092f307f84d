package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunRecord is one persisted reconstruction run.
type RunRecord struct {
	RunID       string          `json:"run_id"`
	InputPath   string          `json:"input_path"`
	OutputPath  string          `json:"output_path"`
	Options     json.RawMessage `json:"options"`
	Instances   int             `json:"instances"`
	Planes      int             `json:"planes"`
	Warnings    json.RawMessage `json:"warnings,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	CompletedAt time.Time       `json:"completed_at"`
}

// RunStore provides persistence for reconstruction runs.
type RunStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			input_path    TEXT,
			output_path   TEXT,
			options       TEXT,
			instances     BIGINT,
			planes        BIGINT,
			warnings      TEXT,
			duration_ms   BIGINT,
			completed_at  TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *RunStore) Close() error { return s.db.Close() }

// NewRunID returns a fresh unique run identifier.
func NewRunID() string { return uuid.NewString() }

// InsertRun records a completed run. A zero RunID is filled in and the
// final record is returned.
func (s *RunStore) InsertRun(rec RunRecord) (RunRecord, error) {
	if rec.RunID == "" {
		rec.RunID = NewRunID()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (
			run_id, input_path, output_path, options, instances, planes,
			warnings, duration_ms, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.InputPath,
		rec.OutputPath,
		string(rec.Options),
		rec.Instances,
		rec.Planes,
		nullStr(string(rec.Warnings)),
		rec.DurationMS,
		rec.CompletedAt.Format(time.RFC3339),
	)
	if err != nil {
		return rec, fmt.Errorf("store: insert run %s: %w", rec.RunID, err)
	}
	return rec, nil
}

// GetRun fetches one run by id.
func (s *RunStore) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, input_path, output_path, options, instances, planes,
		       warnings, duration_ms, completed_at
		FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, input_path, output_path, options, instances, planes,
		       warnings, duration_ms, completed_at
		FROM runs ORDER BY completed_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var options, completedAt string
	var warnings sql.NullString
	err := row.Scan(
		&rec.RunID,
		&rec.InputPath,
		&rec.OutputPath,
		&options,
		&rec.Instances,
		&rec.Planes,
		&warnings,
		&rec.DurationMS,
		&completedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("store: scan run: %w", err)
	}
	rec.Options = json.RawMessage(options)
	if warnings.Valid && warnings.String != "" {
		rec.Warnings = json.RawMessage(warnings.String)
	}
	if t, err := time.Parse(time.RFC3339, completedAt); err == nil {
		rec.CompletedAt = t
	}
	return rec, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Package store persists run history: one record per pipeline run with its
// per-stage verdict counts and output locations, kept in SQLite so repeated
// runs over the same model exports can be compared later.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// StageResult is the per-stage outcome recorded with a run.
type StageResult struct {
	Stage       string `json:"stage"`
	Total       int    `json:"total"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	VerdictPath string `json:"verdict_path"`
	MergedPath  string `json:"merged_path"`
}

// RunRecord is one pipeline run.
type RunRecord struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	RulesFile  string        `json:"rules_file"`
	ParamsFile string        `json:"params_file"`
	Status     string        `json:"status"`
	Stages     []StageResult `json:"stages"`
	Scored     bool          `json:"scored"`
	ScorePath  string        `json:"score_path,omitempty"`
}

// SQLiteStore provides SQLite-based persistence for run history.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the run-history database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized in SQLite, so a small pool is enough.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		rules_file TEXT NOT NULL,
		params_file TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// SaveRun saves a run record to the database
func (s *SQLiteStore) SaveRun(run *RunRecord) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, rules_file, params_file, status, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.RulesFile,
		run.ParamsFile,
		run.Status,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(id string) (*RunRecord, error) {
	var data string
	query := `SELECT data FROM runs WHERE id = ?`

	err := s.db.QueryRow(query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns lists runs newest first, up to limit. A limit of 0 lists all.
func (s *SQLiteStore) ListRuns(limit int) ([]*RunRecord, error) {
	query := `SELECT data FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*RunRecord, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var run RunRecord
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// DeleteRun deletes a run record
func (s *SQLiteStore) DeleteRun(id string) error {
	query := `DELETE FROM runs WHERE id = ?`
	if _, err := s.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

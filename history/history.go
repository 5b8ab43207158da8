// Package history keeps a journal of crawl runs in SQLite. The journal is
// informational: the item store and the ledger remain the source of truth
// for what has been harvested.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run ID has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one journal entry.
type Run struct {
	RunID         uuid.UUID `json:"run_id"`
	Mode          string    `json:"mode"`
	EffectiveMode string    `json:"effective_mode"`
	MaxPages      int       `json:"max_pages"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	StopReason    string    `json:"stop_reason"`
	PagesFetched  int       `json:"pages_fetched"`
	NewItems      int       `json:"new_items"`
	TotalItems    int       `json:"total_items"`
	Error         *string   `json:"error,omitempty"`
}

// Succeeded reports whether the run finished without error.
func (r *Run) Succeeded() bool {
	return r.Error == nil
}

// Journal stores run summaries.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// initSchema creates the runs table if it doesn't exist.
func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		effective_mode TEXT NOT NULL,
		max_pages INTEGER DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		stop_reason TEXT,
		pages_fetched INTEGER DEFAULT 0,
		new_items INTEGER DEFAULT 0,
		total_items INTEGER DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts a run. Recording the same run ID twice replaces the entry.
func (j *Journal) Record(run Run) error {
	query := `
		INSERT OR REPLACE INTO runs (
			run_id, mode, effective_mode, max_pages, started_at, finished_at,
			stop_reason, pages_fetched, new_items, total_items, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.Exec(query,
		run.RunID.String(),
		run.Mode,
		run.EffectiveMode,
		run.MaxPages,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.StopReason,
		run.PagesFetched,
		run.NewItems,
		run.TotalItems,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

const selectRuns = `
	SELECT run_id, mode, effective_mode, max_pages, started_at, finished_at,
	       stop_reason, pages_fetched, new_items, total_items, error
	FROM runs
`

// Get retrieves a run by ID.
func (j *Journal) Get(runID uuid.UUID) (*Run, error) {
	row := j.db.QueryRow(selectRuns+" WHERE run_id = ?", runID.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (j *Journal) List(limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var runIDStr, mode, effectiveMode, startedAtStr, finishedAtStr string
	var stopReason, runErr sql.NullString
	var maxPages, pagesFetched, newItems, totalItems int

	err := s.Scan(
		&runIDStr, &mode, &effectiveMode, &maxPages, &startedAtStr, &finishedAtStr,
		&stopReason, &pagesFetched, &newItems, &totalItems, &runErr,
	)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	run := &Run{
		RunID:         runID,
		Mode:          mode,
		EffectiveMode: effectiveMode,
		MaxPages:      maxPages,
		StartedAt:     parseTime(startedAtStr),
		FinishedAt:    parseTime(finishedAtStr),
		StopReason:    stopReason.String,
		PagesFetched:  pagesFetched,
		NewItems:      newItems,
		TotalItems:    totalItems,
	}
	if runErr.Valid {
		run.Error = &runErr.String
	}

	return run, nil
}

func formatTime(t time.Time) string {
	// Fixed-width UTC keeps lexical order equal to time order
	return t.UTC().Truncate(0).Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}

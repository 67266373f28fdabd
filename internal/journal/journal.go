// Package journal keeps a local SQLite history of completed runs: the
// manifest label, the task handle the transfer service returned, and the run
// counters. The pipeline itself stays stateless across runs; the journal
// exists so operators can look up task ids for status queries after the
// fact.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	finished_at TEXT NOT NULL,
	label TEXT NOT NULL,
	state TEXT NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	files_considered INTEGER NOT NULL DEFAULT 0,
	files_skipped INTEGER NOT NULL DEFAULT 0,
	files_archived INTEGER NOT NULL DEFAULT 0,
	files_raw INTEGER NOT NULL DEFAULT 0,
	groups_dropped INTEGER NOT NULL DEFAULT 0
);
`

// Entry is one recorded run.
type Entry struct {
	ID              int64
	FinishedAt      time.Time
	Label           string
	State           string
	TaskID          string
	FilesConsidered int64
	FilesSkipped    int64
	FilesArchived   int64
	FilesRaw        int64
	GroupsDropped   int64
}

// Journal wraps the history database.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode = WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one run. FinishedAt defaults to now when zero.
func (j *Journal) Record(e Entry) error {
	at := e.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(`
		INSERT INTO runs (finished_at, label, state, task_id,
			files_considered, files_skipped, files_archived, files_raw, groups_dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at.Format(time.RFC3339), e.Label, e.State, e.TaskID,
		e.FilesConsidered, e.FilesSkipped, e.FilesArchived, e.FilesRaw, e.GroupsDropped,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.Label, err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, finished_at, label, state, task_id,
			files_considered, files_skipped, files_archived, files_raw, groups_dropped
		FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var finished string
		if err := rows.Scan(&e.ID, &finished, &e.Label, &e.State, &e.TaskID,
			&e.FilesConsidered, &e.FilesSkipped, &e.FilesArchived, &e.FilesRaw, &e.GroupsDropped); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if e.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastForLabel returns the most recent run with the given label, or nil when
// none exists.
func (j *Journal) LastForLabel(label string) (*Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, finished_at, label, state, task_id,
			files_considered, files_skipped, files_archived, files_raw, groups_dropped
		FROM runs WHERE label = ? ORDER BY id DESC LIMIT 1`, label)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", label, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e Entry
	var finished string
	if err := rows.Scan(&e.ID, &finished, &e.Label, &e.State, &e.TaskID,
		&e.FilesConsidered, &e.FilesSkipped, &e.FilesArchived, &e.FilesRaw, &e.GroupsDropped); err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if e.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
	}
	return &e, nil
}

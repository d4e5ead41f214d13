package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Database journals batch runs for the lifetime of the process. Nothing is
// written to disk.
type Database struct {
	db     *sql.DB
	logger *log.Entry
}

type RunRecord struct {
	ID         string     `json:"id"`
	Page       string     `json:"page"`
	State      string     `json:"state"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Downloaded int        `json:"downloaded"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type OutcomeRecord struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	Kind       string    `json:"kind"`
	Item       string    `json:"item"`
	Path       string    `json:"path,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func New() (*Database, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	d := &Database{
		db:     db,
		logger: log.WithFields(log.Fields{"module": "database"}),
	}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Debug("in-memory journal initialized")
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			page TEXT NOT NULL,
			state TEXT NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			processed INTEGER NOT NULL DEFAULT 0,
			downloaded INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_page ON runs(page, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			item_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			item TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, item_index)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// timeFormat keeps a fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		log.Warnf("failed to parse timestamp '%s': %v", value, err)
		return time.Time{}
	}
	return t
}

// StartRun records a run. Starting the same run twice is a no-op.
func (d *Database) StartRun(id, page, state string, total int) error {
	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO runs (id, page, state, total, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, page, state, total, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// UpdateRun stores the latest counters. finished marks the run as ended.
func (d *Database) UpdateRun(id, state string, processed, downloaded int, status string, finished bool) error {
	var finishedAt any
	if finished {
		finishedAt = now()
	}
	_, err := d.db.Exec(
		`UPDATE runs SET state = ?, processed = ?, downloaded = ?, status = ?, finished_at = COALESCE(?, finished_at)
		 WHERE id = ?`,
		state, processed, downloaded, status, finishedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordOutcome stores the outcome of one item. Each index is kept once.
func (d *Database) RecordOutcome(record OutcomeRecord) error {
	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO outcomes (run_id, item_index, kind, item, path, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.Index, record.Kind, record.Item, record.Path, record.Error, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

func (d *Database) GetRun(id string) (*RunRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, page, state, total, processed, downloaded, status, started_at, finished_at
		 FROM runs WHERE id = ?`, id)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return r, nil
}

// GetRecentRuns returns the latest runs of a page, newest first.
func (d *Database) GetRecentRuns(page string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.Query(
		`SELECT id, page, state, total, processed, downloaded, status, started_at, finished_at
		 FROM runs
		 WHERE page = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		page, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var r RunRecord
	var startedAt string
	var finishedAt sql.NullString
	if err := s.Scan(&r.ID, &r.Page, &r.State, &r.Total, &r.Processed, &r.Downloaded,
		&r.Status, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetOutcomes returns the outcomes of a run in item order.
func (d *Database) GetOutcomes(runID string) ([]OutcomeRecord, error) {
	if _, err := d.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(
		`SELECT run_id, item_index, kind, item, path, error, recorded_at
		 FROM outcomes
		 WHERE run_id = ?
		 ORDER BY item_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	records := []OutcomeRecord{}
	for rows.Next() {
		var r OutcomeRecord
		var recordedAt string
		if err := rows.Scan(&r.RunID, &r.Index, &r.Kind, &r.Item, &r.Path, &r.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		r.RecordedAt = parseTime(recordedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

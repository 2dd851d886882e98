// Package history keeps a SQLite log of past runs so success rates can be
// compared over time.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"loadswarm/internal/collector"
)

//go:embed schema.sql
var schemaSQL string

// timeFormat has fixed width so stored timestamps sort correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultPath is used when neither the flag nor the config file names a database.
const DefaultPath = "load-test-results/history.db"

// Run is one recorded load test.
type Run struct {
	ID              int64
	WorkerType      string
	Environment     string
	StartedAt       time.Time
	EndedAt         time.Time
	Spawned         int
	Total           int
	Passed          int
	Failed          int
	Incomplete      int
	SuccessRate     float64
	Threshold       float64
	PassedThreshold bool
	SummaryPath     string
}

// FromSummary converts a run summary into a history row.
func FromSummary(s *collector.Summary, summaryPath string) *Run {
	return &Run{
		WorkerType:      s.TestType,
		Environment:     s.Environment,
		StartedAt:       s.StartTime,
		EndedAt:         s.EndTime,
		Spawned:         s.Results.Spawned,
		Total:           s.Results.Total,
		Passed:          s.Results.Passed,
		Failed:          s.Results.Failed,
		Incomplete:      s.Results.Incomplete,
		SuccessRate:     s.Results.Rate(),
		Threshold:       s.Threshold,
		PassedThreshold: s.PassedThreshold,
		SummaryPath:     summaryPath,
	}
}

// Trend aggregates the most recent runs of one worker type.
type Trend struct {
	WorkerType string
	Runs       int
	PassedRuns int
	AvgRate    float64
	MinRate    float64
	MaxRate    float64
	LastRate   float64
}

// Store manages the SQLite database of runs.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the database at dbPath.
// ":memory:" gives a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a statement, backing off on "database is locked".
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts a run and sets its ID.
func (s *Store) Record(ctx context.Context, run *Run) error {
	query := `INSERT INTO runs
		(worker_type, environment, started_at, ended_at, spawned, total, passed, failed, incomplete, success_rate, threshold, passed_threshold, summary_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		run.WorkerType,
		run.Environment,
		run.StartedAt.UTC().Format(timeFormat),
		run.EndedAt.UTC().Format(timeFormat),
		run.Spawned,
		run.Total,
		run.Passed,
		run.Failed,
		run.Incomplete,
		run.SuccessRate,
		run.Threshold,
		run.PassedThreshold,
		run.SummaryPath,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

const selectRuns = `SELECT id, worker_type, environment, started_at, ended_at, spawned, total, passed, failed, incomplete, success_rate, threshold, passed_threshold, summary_path
	FROM runs`

// Recent returns up to limit runs, newest first. An empty workerType
// matches every type.
func (s *Store) Recent(ctx context.Context, workerType string, limit int) ([]*Run, error) {
	query := selectRuns
	var args []any
	if workerType != "" {
		query += ` WHERE worker_type = ?`
		args = append(args, workerType)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var started, ended string
		err := rows.Scan(
			&run.ID,
			&run.WorkerType,
			&run.Environment,
			&started,
			&ended,
			&run.Spawned,
			&run.Total,
			&run.Passed,
			&run.Failed,
			&run.Incomplete,
			&run.SuccessRate,
			&run.Threshold,
			&run.PassedThreshold,
			&run.SummaryPath,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.EndedAt, err = time.Parse(timeFormat, ended); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Trend summarizes the last limit runs of workerType. A type with no runs
// yields a zero Trend.
func (s *Store) Trend(ctx context.Context, workerType string, limit int) (*Trend, error) {
	runs, err := s.Recent(ctx, workerType, limit)
	if err != nil {
		return nil, err
	}

	t := &Trend{WorkerType: workerType, Runs: len(runs)}
	if len(runs) == 0 {
		return t, nil
	}

	t.LastRate = runs[0].SuccessRate
	t.MinRate = runs[0].SuccessRate
	t.MaxRate = runs[0].SuccessRate
	var sum float64
	for _, r := range runs {
		sum += r.SuccessRate
		t.MinRate = min(t.MinRate, r.SuccessRate)
		t.MaxRate = max(t.MaxRate, r.SuccessRate)
		if r.PassedThreshold {
			t.PassedRuns++
		}
	}
	t.AvgRate = sum / float64(len(runs))
	return t, nil
}

// Package store keeps the harvest ledger: one row per harvest run and one
// row per DOI outcome, in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"obiscatalog/internal/logging"
)

// Run is one harvest run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Force      bool
	Saved      int
	Unchanged  int
	Missing    int
	Failed     int
}

// Finished reports whether the run completed.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// ItemRecord is the outcome of one DOI within a run.
type ItemRecord struct {
	RunID      string
	DOI        string
	Status     string
	Error      string
	RecordedAt time.Time
}

// Ledger implements harvest.Recorder on a SQLite database.
type Ledger struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// OpenLedger opens or creates the ledger database at path. The path
// ":memory:" keeps the ledger in memory.
func OpenLedger(path string) (*Ledger, error) {
	logging.Store("opening harvest ledger at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	l := &Ledger{db: db, path: path, now: time.Now}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS harvest_runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		force INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS harvest_items (
		run_id TEXT NOT NULL REFERENCES harvest_runs(id),
		doi TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_harvest_items_run ON harvest_items(run_id);
	CREATE INDEX IF NOT EXISTS idx_harvest_items_doi ON harvest_items(doi);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	logging.StoreDebug("ledger schema ready")
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a new run and returns its id.
func (l *Ledger) StartRun(ctx context.Context, force bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO harvest_runs (id, started_at, force) VALUES (?, ?, ?)`,
		id, l.now().UnixMilli(), boolInt(force))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	logging.Store("started harvest run %s (force=%v)", id, force)
	return id, nil
}

// RecordItem stores the outcome of one DOI.
func (l *Ledger) RecordItem(ctx context.Context, runID, doi, status, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO harvest_items (run_id, doi, status, error, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		runID, doi, status, errMsg, l.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// FinishRun stamps the run with its totals.
func (l *Ledger) FinishRun(ctx context.Context, runID string, saved, unchanged, missing, failed int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`UPDATE harvest_runs SET finished_at = ?, saved = ?, unchanged = ?, missing = ?, failed = ? WHERE id = ?`,
		l.now().UnixMilli(), saved, unchanged, missing, failed, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run: %s", runID)
	}
	logging.Store("finished harvest run %s: %d saved, %d unchanged, %d missing, %d failed",
		runID, saved, unchanged, missing, failed)
	return nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, force, saved, unchanged, missing, failed
		FROM harvest_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			force    int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &force, &r.Saved, &r.Unchanged, &r.Missing, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		r.Force = force != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Items returns the outcomes recorded for a run in insertion order.
func (l *Ledger) Items(ctx context.Context, runID string) ([]ItemRecord, error) {
	return l.queryItems(ctx, `
		SELECT run_id, doi, status, error, recorded_at
		FROM harvest_items WHERE run_id = ? ORDER BY rowid`, runID)
}

// History returns every recorded outcome for a DOI, newest first.
func (l *Ledger) History(ctx context.Context, doi string) ([]ItemRecord, error) {
	return l.queryItems(ctx, `
		SELECT run_id, doi, status, error, recorded_at
		FROM harvest_items WHERE doi = ? ORDER BY recorded_at DESC, rowid DESC`, doi)
}

func (l *Ledger) queryItems(ctx context.Context, query string, arg string) ([]ItemRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var (
			it ItemRecord
			at int64
		)
		if err := rows.Scan(&it.RunID, &it.DOI, &it.Status, &it.Error, &at); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.RecordedAt = time.UnixMilli(at)
		items = append(items, it)
	}
	return items, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

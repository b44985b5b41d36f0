// Package journal persists ledger event logs to SQLite for downstream
// analytics. It is an export surface only: the in-memory event log stays
// authoritative and the settlement/clearing engines never read from here.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/opensimfi/daybook/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Journal is a SQLite-backed archive of simulation runs.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path. Use
// ":memory:" for tests.
//
// The database is configured with WAL mode, NORMAL synchronous, a
// 5-second busy timeout, and foreign key enforcement. SQLite supports
// one writer at a time, so the pool is capped at a single connection.
// Idempotent: safe to call on an existing journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RunInfo describes one archived run.
type RunInfo struct {
	ID        string
	Scenario  string
	CreatedAt string
}

// BeginRun registers a new run and returns its ID. Run IDs are UUIDv7,
// so listing runs in ID order is also creation order.
func (j *Journal) BeginRun(ctx context.Context, scenario string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, created_at) VALUES (?, ?, ?)`,
		id, scenario, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// Append writes events for a run. Idempotent per (run, seq): re-writing
// an already archived event is a no-op, so mirroring the full log after
// every day is safe.
func (j *Journal) Append(ctx context.Context, runID string, events []ledger.Event) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, kind, day, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event seq %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, e.Seq, string(e.Kind), e.Day, string(payload)); err != nil {
			return fmt.Errorf("append event seq %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// ReadRun returns every archived event of a run in seq order.
func (j *Journal) ReadRun(ctx context.Context, runID string) ([]ledger.Event, error) {
	return j.readEvents(ctx, `
		SELECT payload FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadDay returns a run's events for one day in seq order.
func (j *Journal) ReadDay(ctx context.Context, runID string, day int) ([]ledger.Event, error) {
	return j.readEvents(ctx, `
		SELECT payload FROM events
		WHERE run_id = ? AND day = ?
		ORDER BY seq ASC
	`, runID, day)
}

func (j *Journal) readEvents(ctx context.Context, query string, args ...any) ([]ledger.Event, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ledger.Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e ledger.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Runs lists archived runs in creation order.
func (j *Journal) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, scenario, created_at FROM runs ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.ID, &r.Scenario, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Package store keeps a history of steering runs in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("store: run not found")

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		started_at    TIMESTAMP NOT NULL,
		frames        BIGINT NOT NULL,
		commands      BIGINT NOT NULL,
		elapsed_s     DOUBLE NOT NULL,
		fps           DOUBLE NOT NULL,
		tolerance_px2 DOUBLE NOT NULL,
		final_state   TEXT NOT NULL,
		error         TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS samples (
		run_id        TEXT NOT NULL,
		seq           BIGINT NOT NULL,
		elapsed_s     DOUBLE NOT NULL,
		distance_px   DOUBLE NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
`

// Run is one row of the runs table.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	Frames       int       `json:"frames"`
	Commands     int       `json:"commands"`
	ElapsedS     float64   `json:"elapsed_s"`
	FPS          float64   `json:"fps"`
	TolerancePx2 float64   `json:"tolerance_px2"`
	FinalState   string    `json:"final_state"`
	Error        string    `json:"error,omitempty"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// DB wraps the run history database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &DB{db}, nil
}

// SaveRun stores the run and its trace in one transaction. An empty run ID is
// filled in with NewRunID; the stored ID is returned.
func (db *DB) SaveRun(ctx context.Context, run Run, tr tracking.Trace) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	if len(tr.Elapsed) != len(tr.Distance) {
		return "", fmt.Errorf("trace has %d times but %d distances", len(tr.Elapsed), len(tr.Distance))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, frames, commands, elapsed_s, fps, tolerance_px2, final_state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Frames, run.Commands, run.ElapsedS, run.FPS,
		run.TolerancePx2, run.FinalState, run.Error)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (run_id, seq, elapsed_s, distance_px) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for i := range tr.Elapsed {
		if _, err := stmt.ExecContext(ctx, run.ID, i, tr.Elapsed[i], tr.Distance[i]); err != nil {
			return "", fmt.Errorf("insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_at, frames, commands, elapsed_s, fps, tolerance_px2, final_state, error
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Frames, &r.Commands, &r.ElapsedS, &r.FPS,
			&r.TolerancePx2, &r.FinalState, &r.Error); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadTrace returns the samples recorded for a run, in order.
func (db *DB) LoadTrace(ctx context.Context, id string) (tracking.Trace, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Trace{}, ErrNotFound
	}
	if err != nil {
		return tracking.Trace{}, err
	}

	rows, err := db.QueryContext(ctx, `SELECT elapsed_s, distance_px FROM samples WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return tracking.Trace{}, err
	}
	defer rows.Close()

	tr := tracking.Trace{Elapsed: []float64{}, Distance: []float64{}}
	for rows.Next() {
		var e, d float64
		if err := rows.Scan(&e, &d); err != nil {
			return tracking.Trace{}, err
		}
		tr.Elapsed = append(tr.Elapsed, e)
		tr.Distance = append(tr.Distance, d)
	}
	return tr, rows.Err()
}

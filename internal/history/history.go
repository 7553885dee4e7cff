// Package history keeps a SQLite ledger of orchestration saga runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is the state of a saga run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPending   Status = "pending" // async: accepted by the server, reply not collected
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one saga execution.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ProjectID  string    `json:"project_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Store persists runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		session_id  TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Start records a new running saga and returns its id.
func (s *Store) Start(ctx context.Context, kind, projectID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, project_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, kind, projectID, string(StatusRunning), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// AttachSession stores the remote session id of a run.
func (s *Store) AttachSession(ctx context.Context, id, sessionID string) error {
	return s.exec(ctx, `UPDATE runs SET session_id = ? WHERE id = ?`, sessionID, id)
}

// Finish sets the final status of a run. errMsg may be empty.
func (s *Store) Finish(ctx context.Context, id string, status Status, errMsg string) error {
	return s.exec(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UnixMilli(), id)
}

// FinishSession closes the latest pending run for sessionID. It returns
// ErrNotFound when there is none.
func (s *Store) FinishSession(ctx context.Context, sessionID string, status Status, errMsg string) error {
	return s.exec(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = (SELECT id FROM runs WHERE session_id = ? AND status = ? ORDER BY started_at DESC LIMIT 1)`,
		string(status), errMsg, time.Now().UnixMilli(), sessionID, string(StatusPending))
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, project_id, session_id, status, error, started_at, finished_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns the most recent runs first. A limit of zero or less means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, project_id, session_id, status, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		status            string
		started, finished int64
	)
	if err := sc.Scan(&r.ID, &r.Kind, &r.ProjectID, &r.SessionID, &status, &r.Error, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished)
	}
	return &r, nil
}

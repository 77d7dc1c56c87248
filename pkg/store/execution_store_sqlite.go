package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stratus-ops/conductor/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteExecutionStore persists execution records in SQLite.
type SQLiteExecutionStore struct {
	db *sql.DB
}

// NewSQLiteExecutionStore wraps an open SQLite handle and ensures the schema.
func NewSQLiteExecutionStore(db *sql.DB) (*SQLiteExecutionStore, error) {
	s := &SQLiteExecutionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteExecutionStore opens (or creates) the database at path.
func OpenSQLiteExecutionStore(path string) (*SQLiteExecutionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writes.
	db.SetMaxOpenConns(1)
	return NewSQLiteExecutionStore(db)
}

func (s *SQLiteExecutionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		ok INTEGER NOT NULL,
		results JSON NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save implements ExecutionStore.
func (s *SQLiteExecutionStore) Save(ctx context.Context, record *contracts.ExecutionRecord) error {
	results, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("store: marshal results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, ok, results, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			ok = excluded.ok,
			results = excluded.results,
			finished_at = excluded.finished_at`,
		record.ExecutionID, boolToInt(record.OK), string(results), record.StartedAt, record.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: save execution: %w", err)
	}
	return nil
}

// Get implements ExecutionStore.
func (s *SQLiteExecutionStore) Get(ctx context.Context, executionID string) (*contracts.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, ok, results, started_at, finished_at
		FROM executions WHERE execution_id = ?`, executionID)
	return scanExecution(row)
}

// List implements ExecutionStore.
func (s *SQLiteExecutionStore) List(ctx context.Context, limit int) ([]*contracts.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, ok, results, started_at, finished_at
		FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteExecutionStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*contracts.ExecutionRecord, error) {
	var record contracts.ExecutionRecord
	var ok int
	var results string

	err := row.Scan(&record.ExecutionID, &ok, &results, &record.StartedAt, &record.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan execution: %w", err)
	}

	record.OK = ok != 0
	if err := json.Unmarshal([]byte(results), &record.Results); err != nil {
		return nil, fmt.Errorf("store: unmarshal results: %w", err)
	}
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stratus-ops/conductor/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresExecutionStore persists execution records in PostgreSQL.
type PostgresExecutionStore struct {
	db *sql.DB
}

// NewPostgresExecutionStore wraps an open Postgres handle and ensures the schema.
func NewPostgresExecutionStore(db *sql.DB) (*PostgresExecutionStore, error) {
	s := &PostgresExecutionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresExecutionStore connects using a standard Postgres DSN.
func OpenPostgresExecutionStore(dsn string) (*PostgresExecutionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewPostgresExecutionStore(db)
}

func (s *PostgresExecutionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		ok BOOLEAN NOT NULL,
		results JSONB NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save implements ExecutionStore.
func (s *PostgresExecutionStore) Save(ctx context.Context, record *contracts.ExecutionRecord) error {
	results, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("store: marshal results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, ok, results, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (execution_id) DO UPDATE SET
			ok = EXCLUDED.ok,
			results = EXCLUDED.results,
			finished_at = EXCLUDED.finished_at`,
		record.ExecutionID, record.OK, results, record.StartedAt, record.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: save execution: %w", err)
	}
	return nil
}

// Get implements ExecutionStore.
func (s *PostgresExecutionStore) Get(ctx context.Context, executionID string) (*contracts.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, ok, results, started_at, finished_at
		FROM executions WHERE execution_id = $1`, executionID)

	var record contracts.ExecutionRecord
	var results []byte
	err := row.Scan(&record.ExecutionID, &record.OK, &results, &record.StartedAt, &record.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan execution: %w", err)
	}
	if err := json.Unmarshal(results, &record.Results); err != nil {
		return nil, fmt.Errorf("store: unmarshal results: %w", err)
	}
	return &record, nil
}

// List implements ExecutionStore.
func (s *PostgresExecutionStore) List(ctx context.Context, limit int) ([]*contracts.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, ok, results, started_at, finished_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.ExecutionRecord
	for rows.Next() {
		var record contracts.ExecutionRecord
		var results []byte
		if err := rows.Scan(&record.ExecutionID, &record.OK, &results, &record.StartedAt, &record.FinishedAt); err != nil {
			return nil, fmt.Errorf("store: scan execution: %w", err)
		}
		if err := json.Unmarshal(results, &record.Results); err != nil {
			return nil, fmt.Errorf("store: unmarshal results: %w", err)
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *PostgresExecutionStore) Close() error {
	return s.db.Close()
}

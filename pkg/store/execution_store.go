// Package store persists execution records so operators can correlate
// dispatched work with audit logs after the fact. Three backends: in-memory
// for tests, SQLite for single-node deployments, Postgres for shared ones.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// ExecutionStore persists aggregated execution records.
type ExecutionStore interface {
	// Save persists the record, replacing any prior record with the same
	// execution ID.
	Save(ctx context.Context, record *contracts.ExecutionRecord) error

	// Get returns the record for an execution ID, or nil when absent.
	Get(ctx context.Context, executionID string) (*contracts.ExecutionRecord, error)

	// List returns up to limit records, most recently started first.
	List(ctx context.Context, limit int) ([]*contracts.ExecutionRecord, error)
}

// MemoryExecutionStore is the in-memory backend.
type MemoryExecutionStore struct {
	mu      sync.RWMutex
	records map[string]*contracts.ExecutionRecord
}

// NewMemoryExecutionStore creates an empty in-memory store.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{records: make(map[string]*contracts.ExecutionRecord)}
}

// Save implements ExecutionStore.
func (s *MemoryExecutionStore) Save(ctx context.Context, record *contracts.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ExecutionID] = record
	return nil
}

// Get implements ExecutionStore.
func (s *MemoryExecutionStore) Get(ctx context.Context, executionID string) (*contracts.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[executionID], nil
}

// List implements ExecutionStore.
func (s *MemoryExecutionStore) List(ctx context.Context, limit int) ([]*contracts.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*contracts.ExecutionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package console

import (
	"context"
	"sync"
	"time"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// DefaultIdempotencyTTL is how long a recorded outcome stays replayable.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers execution outcomes by client-supplied key so a
// retried commit replays the recorded result instead of dispatching twice.
type IdempotencyStore interface {
	Check(ctx context.Context, key string) (*contracts.ExecutionRecord, bool, error)
	Set(ctx context.Context, key string, record *contracts.ExecutionRecord) error
}

type cachedRecord struct {
	record   *contracts.ExecutionRecord
	cachedAt time.Time
}

// MemoryIdempotencyStore holds recorded outcomes in-process.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]cachedRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates an in-memory store with the given TTL.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryIdempotencyStore{
		entries: make(map[string]cachedRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryIdempotencyStore) WithClock(clock func() time.Time) *MemoryIdempotencyStore {
	s.now = clock
	return s
}

// Check implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Check(ctx context.Context, key string) (*contracts.ExecutionRecord, bool, error) {
	s.mu.RLock()
	cached, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists || s.now().Sub(cached.cachedAt) >= s.ttl {
		return nil, false, nil
	}
	return cached.record, true, nil
}

// Set implements IdempotencyStore. Expired entries are swept opportunistically
// on write rather than by a background goroutine.
func (s *MemoryIdempotencyStore) Set(ctx context.Context, key string, record *contracts.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.entries {
		if now.Sub(v.cachedAt) >= s.ttl {
			delete(s.entries, k)
		}
	}
	s.entries[key] = cachedRecord{record: record, cachedAt: now}
	return nil
}

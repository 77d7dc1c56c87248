package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// RedisIdempotencyStore backs idempotent replay with Redis so retried commits
// are replay-safe across console instances.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore connects to Redis at addr.
func NewRedisIdempotencyStore(addr, password string, db int, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisIdempotencyStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func idempotencyKey(key string) string {
	return "conductor:idempotency:" + key
}

// Check implements IdempotencyStore.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key string) (*contracts.ExecutionRecord, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("console: idempotency lookup: %w", err)
	}

	var record contracts.ExecutionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("console: idempotency decode: %w", err)
	}
	return &record, true, nil
}

// Set implements IdempotencyStore.
func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, record *contracts.ExecutionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("console: idempotency encode: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("console: idempotency store: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

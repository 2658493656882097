package repository

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdempotencyStore guards a dispatch key for a cooldown period.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisRepository keeps dispatch guards in Redis so every server replica
// sees the same keys.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Acquire returns false when the key is already held.
func (r *RedisRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return r.client.SetNX(ctx, "dispatch:guard:"+key, "1", ttl).Result()
}

func (r *RedisRepository) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, "dispatch:guard:"+key).Err()
}

// MemoryIdempotencyStore is the single-process fallback used when no
// Redis URL is configured.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryIdempotencyStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

var (
	_ IdempotencyStore = (*RedisRepository)(nil)
	_ IdempotencyStore = (*MemoryIdempotencyStore)(nil)
)

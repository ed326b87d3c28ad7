// Package cache provides the content-addressed response/embedding cache.
// The backing store is an external shared key-value service; entries are
// written wholesale, never partially mutated, and expire by TTL rather than
// explicit invalidation.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

// TTLs per entry kind. Embeddings are deterministic per (model, text) so they
// keep for much longer than chat responses.
const (
	ChatTTL      = 1 * time.Hour
	EmbeddingTTL = 24 * time.Hour
)

// Store is the key-value collaborator contract. Any conforming
// implementation is acceptable; RedisStore is the production one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStore backs the cache with a shared Redis instance.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client. Keys are namespaced under
// "llm:cache:".
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "llm:cache:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

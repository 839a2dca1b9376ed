package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBackend = "redis"

	// DefaultRedisPrefix namespaces snapshot keys in a shared Redis.
	DefaultRedisPrefix = "traverser:state:"
)

// RedisStore keeps snapshots as Redis strings.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix overrides DefaultRedisPrefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL expires snapshots that are not refreshed within ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a snapshot store with Redis backend.
func NewRedisStore(redisClient *redis.Client, opts ...RedisOption) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	s := &RedisStore{
		redis:  redisClient,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	Operations.WithLabelValues(redisBackend, "save").Inc()

	if err := s.redis.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		Errors.WithLabelValues(redisBackend, "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	Size.WithLabelValues(redisBackend).Observe(float64(len(data)))
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	Operations.WithLabelValues(redisBackend, "load").Inc()

	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		Errors.WithLabelValues(redisBackend, "load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	Operations.WithLabelValues(redisBackend, "delete").Inc()

	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		Errors.WithLabelValues(redisBackend, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by a DurableStore when the key is absent.
var ErrMiss = errors.New("cache miss")

// DurableStore is the second cache layer: larger capacity, survives process
// restart. Backed by Redis in production; faked in tests.
type DurableStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

var _ DurableStore = (*redisStore)(nil)

type redisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore wraps a Redis client as a DurableStore.
func NewRedisStore(client *redis.Client, logger *zap.Logger) DurableStore {
	return &redisStore{client: client, logger: logger.Named("RedisCache")}
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

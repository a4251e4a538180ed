package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dedupe:"

// RedisStore shares claims across replicas with SET NX.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, connectionString string) (*RedisStore, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}

	return NewRedisStoreFromClient(ctx, redis.NewClient(opts))
}

// NewRedisStoreFromClient takes ownership of client and checks connectivity.
func NewRedisStoreFromClient(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	claimed, err := r.client.SetNX(ctx, redisDedupeKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return claimed, nil
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisDedupeKey(key)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func redisDedupeKey(key string) string {
	return redisKeyPrefix + key
}

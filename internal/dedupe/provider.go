// Package dedupe remembers which webhook deliveries were already processed.
package dedupe

import (
	"context"
	"fmt"
	"time"
)

// Store records delivery keys for a bounded time.
type Store interface {
	// Claim marks key as in-flight or processed. It returns false if the key
	// was already claimed and has not expired.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a redelivery is processed again.
	Release(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryStore(defaultMemoryStoreSize)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported dedupe provider: %s", cfg.Provider)
	}
}

// DeliveryKey namespaces a delivery identity by receiver.
func DeliveryKey(receiver, identity string) string {
	return fmt.Sprintf("webhook:paypal:%s:%s", receiver, identity)
}

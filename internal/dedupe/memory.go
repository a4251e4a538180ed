package dedupe

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryStoreSize = 10_000

// MemoryStore is a process-local Store. Under memory pressure the least
// recently claimed keys are forgotten before their TTL.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, time.Time]
	now     func() time.Time
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	entries, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: entries, now: time.Now}, nil
}

func (m *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, exists := m.entries.Get(key); exists && now.Before(expiresAt) {
		return false, nil
	}

	m.entries.Add(key, now.Add(ttl))
	return true, nil
}

func (m *MemoryStore) Release(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries.Remove(key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

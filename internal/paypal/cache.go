package paypal

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCertificateCacheSize is the number of signing certificates kept.
const DefaultCertificateCacheSize = 10

// KeySource hands out verifying keys for certificate URLs.
type KeySource interface {
	GetOrLoad(ctx context.Context, certURL string) (*VerifyingKey, error)
}

// CertificateCache is a bounded LRU of certificate URL to verifying key.
//
// Lookups and inserts go through the LRU's single lock; the loader runs with
// that lock released. Two concurrent first misses for the same URL may both
// load and both insert. The second insert replaces an equivalent key, so the
// race only costs a duplicate fetch.
//
// Entries are never refreshed: a certificate rotated in place at the same
// URL is served from the cache until it is evicted.
type CertificateCache struct {
	entries  *lru.Cache[string, *VerifyingKey]
	loader   KeyLoader
	recorder Recorder
}

// NewCertificateCache builds a cache of the given capacity in front of loader.
func NewCertificateCache(size int, loader KeyLoader, recorder Recorder) (*CertificateCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("certificate cache size must be positive, got %d", size)
	}
	if loader == nil {
		return nil, fmt.Errorf("certificate loader is required")
	}

	recorder = recorderOrNop(recorder)
	entries, err := lru.NewWithEvict[string, *VerifyingKey](size, func(string, *VerifyingKey) {
		recorder.CertificateEvicted()
	})
	if err != nil {
		return nil, err
	}

	return &CertificateCache{
		entries:  entries,
		loader:   loader,
		recorder: recorder,
	}, nil
}

// GetOrLoad returns the cached key for certURL, loading it on a miss. URLs
// are compared byte for byte. Load failures are returned and not cached.
func (c *CertificateCache) GetOrLoad(ctx context.Context, certURL string) (*VerifyingKey, error) {
	if key, ok := c.entries.Get(certURL); ok {
		c.recorder.CertificateCacheHit()
		return key, nil
	}
	c.recorder.CertificateCacheMiss()

	key, err := c.loader.Load(ctx, certURL)
	if err != nil {
		return nil, err
	}

	c.entries.Add(certURL, key)
	c.recorder.CertificateCacheSize(c.entries.Len())
	return key, nil
}

// Len returns the number of cached keys.
func (c *CertificateCache) Len() int {
	return c.entries.Len()
}

package easymodel

import (
	"context"
	"strings"
	"sync"
)

// CacheNamespace is the namespace used for schema metadata.
const CacheNamespace = "_easy_model_"

// defaultCache holds schema metadata for drivers and managers configured
// without a cache, so a table is described once per process.
var defaultCache = NewMemoryCache()

// DefaultCache returns the process-wide metadata cache.
func DefaultCache() *MemoryCache { return defaultCache }

// DatasourceKeyPrefix is the prefix of every metadata key of the datasource.
func DatasourceKeyPrefix(datasource string) string {
	return datasource + "."
}

// Cache is the interface for the store holding schema metadata.
// Users may implement it with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Read retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Read(ctx context.Context, key, namespace string) ([]byte, error)

	// Write stores a value in the cache.
	Write(ctx context.Context, key, namespace string, value []byte) error
}

// Purger is implemented by caches able to drop entries by key prefix.
// Caches without it keep stale metadata until their entries expire.
type Purger interface {
	Purge(ctx context.Context, prefix, namespace string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]map[string][]byte)}
}

// Read implements the Cache interface.
func (c *MemoryCache) Read(_ context.Context, key, namespace string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[namespace][key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Write implements the Cache interface.
func (c *MemoryCache) Write(_ context.Context, key, namespace string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		c.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	return nil
}

// Clear removes all values of the given namespace.
func (c *MemoryCache) Clear(namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, namespace)
}

// Purge implements the Purger interface.
func (c *MemoryCache) Purge(_ context.Context, prefix, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data[namespace] {
		if strings.HasPrefix(key, prefix) {
			delete(c.data[namespace], key)
		}
	}
	return nil
}

// NopCache never stores anything. Every read is a miss.
type NopCache struct{}

// Read implements the Cache interface.
func (NopCache) Read(context.Context, string, string) ([]byte, error) { return nil, nil }

// Write implements the Cache interface.
func (NopCache) Write(context.Context, string, string, []byte) error { return nil }

package services

import (
	"context"
	"sync"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// StorageCache memoises storage lookups for one run. Entries are written once
// and never evicted; a failed lookup is stored as nil so it is not retried.
// Storage configuration is assumed not to change during a run.
type StorageCache struct {
	client integration.VaultClient

	mu      sync.Mutex
	entries map[string]*domain.Storage
}

func NewStorageCache(client integration.VaultClient) *StorageCache {
	return &StorageCache{
		client:  client,
		entries: make(map[string]*domain.Storage),
	}
}

// Get returns the storage and whether it could be resolved.
// The lock is held across the fetch so concurrent items share one lookup.
func (c *StorageCache) Get(ctx context.Context, storageID string) (*domain.Storage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.entries[storageID]; ok {
		return s, s != nil
	}

	s, err := c.client.GetStorage(ctx, storageID)
	if err != nil {
		logger.Warnf("Storage lookup for %s failed, caching as unknown: %v", storageID, err)
		c.entries[storageID] = nil
		return nil, false
	}
	c.entries[storageID] = s
	return s, true
}

// Len returns the number of cached entries, negative ones included.
func (c *StorageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

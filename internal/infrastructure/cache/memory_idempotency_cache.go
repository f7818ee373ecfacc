package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
)

// entry represents a cached command result with expiration
type entry struct {
	result    []byte
	expiresAt time.Time
}

// InMemoryIdempotencyCache implements IdempotencyCache using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryIdempotencyCache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyCache creates a new in-memory cache and starts a
// background goroutine that drops expired entries
func NewInMemoryIdempotencyCache() *InMemoryIdempotencyCache {
	c := &InMemoryIdempotencyCache{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

func memoryKey(companyID uuid.UUID, key string) string {
	return companyID.String() + ":" + key
}

// Get returns the cached result for the key, if present and not expired
func (c *InMemoryIdempotencyCache) Get(_ context.Context, companyID uuid.UUID, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[memoryKey(companyID, key)]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	out := make([]byte, len(e.result))
	copy(out, e.result)
	return out, true, nil
}

// Put stores the result with a TTL, replacing any previous value
func (c *InMemoryIdempotencyCache) Put(_ context.Context, companyID uuid.UUID, key string, result []byte, ttl time.Duration) error {
	stored := make([]byte, len(result))
	copy(stored, result)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memoryKey(companyID, key)] = entry{
		result:    stored,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemoryIdempotencyCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryIdempotencyCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryIdempotencyCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Size returns the number of entries, expired ones included until cleanup
func (c *InMemoryIdempotencyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ shared.IdempotencyCache = (*InMemoryIdempotencyCache)(nil)

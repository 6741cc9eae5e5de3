package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	bridge "github.com/goliatone/go-auth-bridge"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process local cache for single instance deployments and
// tests. Expired items are dropped lazily and by Sweep.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

var _ bridge.HandoffCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: map[string]memoryItem{},
		now:   time.Now,
	}
}

// Set implements bridge.HandoffCache.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Take implements bridge.HandoffCache.
func (c *MemoryCache) Take(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	delete(c.items, key)
	if !c.now().Before(item.expiresAt) {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Sweep drops expired items and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on every tick until ctx is done.
func (c *MemoryCache) StartSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

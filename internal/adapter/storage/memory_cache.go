package storage

import (
	"context"
	"sync"
	"time"
)

const idempotencySweepInterval = time.Minute

// MemoryCache implements port.CacheRepository for a single process.
type MemoryCache struct {
	mu          sync.Mutex
	locks       map[string]lockEntry
	idempotency map[string]time.Time
	lastSweep   time.Time
	now         func() time.Time
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		locks:       make(map[string]lockEntry),
		idempotency: make(map[string]time.Time),
		now:         time.Now,
	}
}

func (c *MemoryCache) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if l, ok := c.locks[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	c.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (c *MemoryCache) ReleaseLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.locks[key]; ok && l.token == token {
		delete(c.locks, key)
	}
	return nil
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	if exp, ok := c.idempotency[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.idempotency[key] = now.Add(idempotencyKeyTTL)
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.idempotency, key)
	return nil
}

// sweepLocked drops expired idempotency keys, at most once per interval.
func (c *MemoryCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < idempotencySweepInterval {
		return
	}
	c.lastSweep = now
	for key, exp := range c.idempotency {
		if !now.Before(exp) {
			delete(c.idempotency, key)
		}
	}
}

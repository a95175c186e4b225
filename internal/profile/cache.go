package profile

import (
	"context"
	"sync"
	"time"

	"social-graph-lab/internal/domain"
)

// DefaultCacheTTL is how long a resolved profile (or its absence) is reused.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	profile   *domain.ProfileMetadata
	expiresAt time.Time
}

// CachedResolver memoizes another Resolver. Failures are not cached.
type CachedResolver struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// Compile-time interface check.
var _ Resolver = (*CachedResolver)(nil)

// NewCachedResolver wraps next with a TTL cache. ttl <= 0 uses DefaultCacheTTL.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve returns the cached profile or delegates.
func (c *CachedResolver) Resolve(ctx context.Context, account domain.AccountID) (*domain.ProfileMetadata, error) {
	key := account.Key()
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.profile, nil
	}

	profile, err := c.next.Resolve(ctx, account)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{profile: profile, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return profile, nil
}

// Purge drops expired entries.
func (c *CachedResolver) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

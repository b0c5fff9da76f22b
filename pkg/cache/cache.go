// Package cache layers a short-lived in-memory cache over the persistent blob cache.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Tiered answers from memory first and falls back to the backing store, promoting
// hits into memory. Writes go to both tiers.
type Tiered struct {
	mem     *gocache.Cache
	backing Cacher
}

// NewTiered creates a tiered cache. A nil backing store makes it memory-only.
func NewTiered(backing Cacher, ttl time.Duration) *Tiered {
	return &Tiered{
		mem:     gocache.New(ttl, ttl*2),
		backing: backing,
	}
}

func (c *Tiered) GetCache(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.mem.Get(key); ok {
		return v.([]byte), true
	}
	if c.backing == nil {
		return nil, false
	}
	val, ok := c.backing.GetCache(ctx, key)
	if ok {
		c.mem.SetDefault(key, val)
	}
	return val, ok
}

func (c *Tiered) SetCache(ctx context.Context, key string, val []byte) error {
	c.mem.SetDefault(key, val)
	if c.backing == nil {
		return nil
	}
	return c.backing.SetCache(ctx, key, val)
}

// Len returns the number of entries held in memory.
func (c *Tiered) Len() int { return c.mem.ItemCount() }

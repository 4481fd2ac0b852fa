package tokeninfo

import (
	"sync"
	"time"
)

type cacheItem struct {
	Info       Info
	Expiration time.Time
}

type cache struct {
	mu    sync.Mutex
	items map[string]*cacheItem
	now   func() time.Time
}

func newCache() *cache {
	return &cache{items: make(map[string]*cacheItem), now: time.Now}
}

func (c *cache) get(mint string) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, found := c.items[mint]; found {
		if c.now().Before(item.Expiration) {
			return item.Info, true
		}
		delete(c.items, mint)
	}
	return Info{}, false
}

func (c *cache) set(mint string, info Info, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[mint] = &cacheItem{
		Info:       info,
		Expiration: c.now().Add(duration),
	}
}

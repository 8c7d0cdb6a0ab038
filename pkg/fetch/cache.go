package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PageCache shares fetched pages between sessions. Concurrent requests for
// the same key collapse into one load; only successful loads are kept.
type PageCache struct {
	group singleflight.Group
	mu    sync.RWMutex
	pages map[string]string
}

func NewPageCache() *PageCache {
	return &PageCache{pages: make(map[string]string)}
}

// Get returns the cached page for key or runs load once for all concurrent callers.
// loaded is true when this caller's own load produced the page.
func (c *PageCache) Get(ctx context.Context, key string, load func(context.Context) (string, error)) (page string, loaded bool, err error) {
	c.mu.RLock()
	page, ok := c.pages[key]
	c.mu.RUnlock()
	if ok {
		return page, false, nil
	}

	ran := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ran = true
		p, err := load(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.pages[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return "", ran, err
	}
	return v.(string), ran, nil
}

func (c *PageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

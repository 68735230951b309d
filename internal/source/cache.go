package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prayerbell/internal/prayer"
)

// Cache memoizes successful fetches per (location, method, day). Failures
// are not cached.
type Cache struct {
	src Source
	max int

	mu    sync.Mutex
	items map[string]cacheItem
}

type cacheItem struct {
	set  prayer.EventTimeSet
	used time.Time
}

// NewCache keeps at most max days (default 64); the least recently used
// day is evicted first.
func NewCache(src Source, max int) *Cache {
	if max <= 0 {
		max = 64
	}
	return &Cache{src: src, max: max, items: map[string]cacheItem{}}
}

func cacheKey(date time.Time, loc prayer.Location, method prayer.Method) string {
	return fmt.Sprintf("%s|%s|%d|%s", loc.String(), loc.Timezone, method, prayer.DayKey(date))
}

func (c *Cache) Fetch(ctx context.Context, date time.Time, loc prayer.Location, method prayer.Method) (prayer.EventTimeSet, error) {
	key := cacheKey(date, loc, method)
	c.mu.Lock()
	if it, ok := c.items[key]; ok {
		it.used = time.Now()
		c.items[key] = it
		c.mu.Unlock()
		return it.set, nil
	}
	c.mu.Unlock()

	set, err := c.src.Fetch(ctx, date, loc, method)
	if err != nil || set.Empty() {
		if err == nil {
			err = ErrNoData
		}
		return prayer.EventTimeSet{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.max {
		var oldest string
		var at time.Time
		for k, it := range c.items {
			if oldest == "" || it.used.Before(at) {
				oldest, at = k, it.used
			}
		}
		delete(c.items, oldest)
	}
	c.items[key] = cacheItem{set: set, used: time.Now()}
	return set, nil
}

// Purge drops every cached day.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.items = map[string]cacheItem{}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

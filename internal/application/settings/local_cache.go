package settings

import (
	"sync"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
)

// localCache is a short-lived in-process snapshot of settings, in front of
// the distributed cache. Entries are lazily evicted on read.
type localCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]localEntry
}

type localEntry struct {
	settings domain.NotificationSettings
	expires  time.Time
}

func newLocalCache(ttl time.Duration) *localCache {
	return &localCache{ttl: ttl, entries: make(map[string]localEntry)}
}

func (c *localCache) get(userID string) (domain.NotificationSettings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return domain.NotificationSettings{}, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, userID)
		return domain.NotificationSettings{}, false
	}
	return e.settings, true
}

func (c *localCache) set(userID string, s domain.NotificationSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = localEntry{settings: s, expires: time.Now().Add(c.ttl)}
}

func (c *localCache) delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

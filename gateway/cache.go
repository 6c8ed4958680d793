package gateway

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry 一条缓存记录。
type cacheEntry struct {
	capturedAt time.Time
	value      any
}

// Cache 按 (操作, 参数) 记忆幂等读操作的结果。
// TTL 由每个操作的策略表给出，不在条目内固化，这样热更新 TTL
// 会立即生效。
type Cache struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]cacheEntry
}

func NewCache(clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock
	}
	return &Cache{clock: clock, entries: make(map[string]cacheEntry)}
}

// CacheKey 拼接操作名与参数生成缓存键。
func CacheKey(op string, args ...string) string {
	if len(args) == 0 {
		return op
	}
	return op + "|" + strings.Join(args, "|")
}

// Get 返回未过期的缓存值。过期条目视同不存在，调用方必须回源。
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	if ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.capturedAt) >= ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put 写入缓存。
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{capturedAt: c.clock.Now(), value: value}
}

package leaderboard

import (
	"sync"
	"time"

	"usagehub/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries 超过该数量的键时插入前整体清空
const DefaultMaxEntries = 200

type entry[T any] struct {
	payload    T
	computedAt time.Time
}

// Cache 带 TTL 的计算结果缓存
// 淘汰策略：读取时丢弃过期项；键数量超过上限时整体清空后再插入
type Cache[T any] struct {
	mu         sync.Mutex
	entries    map[string]entry[T]
	maxEntries int
	now        func() time.Time
	group      singleflight.Group
}

// NewCache 创建缓存，maxEntries <= 0 时使用默认上限
func NewCache[T any](maxEntries int) *Cache[T] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache[T]{
		entries:    make(map[string]entry[T]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock 替换时钟（测试使用）
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// GetOrCompute 命中且未过期时直接返回，否则调用 compute 并缓存结果
// 同一个键的并发未命中只计算一次；compute 出错时不缓存
func (c *Cache[T]) GetOrCompute(key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if payload, ok := c.lookup(key, ttl); ok {
		metrics.LeaderboardCacheHits.Inc()
		return payload, nil
	}
	metrics.LeaderboardCacheMisses.Inc()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if payload, ok := c.lookup(key, ttl); ok {
			return payload, nil
		}
		payload, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(key, payload)
		return payload, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Len 当前缓存的键数量
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空缓存
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

func (c *Cache[T]) lookup(key string, ttl time.Duration) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.computedAt) >= ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.payload, true
}

func (c *Cache[T]) store(key string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > c.maxEntries {
		c.entries = make(map[string]entry[T])
		metrics.LeaderboardCacheFlushes.Inc()
	}
	c.entries[key] = entry[T]{payload: payload, computedAt: c.now()}
}

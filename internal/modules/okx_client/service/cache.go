package service

import (
	"agent_trader/internal/metrics"
	"agent_trader/pkg/logger"
	"fmt"
	"sync"
	"time"
)

const (
	KindCandles     = "candles"
	KindOrderBook   = "orderbook"
	KindFunding     = "funding"
	KindConstraints = "constraints"
	KindTicker      = "ticker"
	KindPnL         = "pnl"
)

// FixedTTL: одинаковый TTL для всех ключей вида ресурса.
func FixedTTL(d time.Duration) func(string) time.Duration {
	return func(string) time.Duration { return d }
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache: кеш одного вида ресурса. Пишет только клиент-владелец, читают все.
type Cache[T any] struct {
	kind string
	ttl  func(key string) time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry[T]

	now func() time.Time
}

func NewCache[T any](kind string, ttl func(key string) time.Duration) *Cache[T] {
	if ttl == nil {
		ttl = FixedTTL(0)
	}
	return &Cache[T]{
		kind:  kind,
		ttl:   ttl,
		items: make(map[string]cacheEntry[T]),
		now:   time.Now,
	}
}

// Kind: вид ресурса.
func (c *Cache[T]) Kind() string { return c.kind }

// Peek: запись без учёта TTL.
func (c *Cache[T]) Peek(key string) (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	return e.value, e.fetchedAt, ok
}

// Set кладёт значение с текущим временем.
func (c *Cache[T]) Set(key string, v T) {
	c.mu.Lock()
	c.items[key] = cacheEntry[T]{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate выкидывает ключ (например, после записи, меняющей ресурс).
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// GetOrFetch отдаёт свежее значение из кеша или зовёт fetch.
// При ошибке fetch возвращает прошлое значение (stale), иначе нулевое. Второй результат -
// есть ли пригодное значение. Ошибки и паники наружу не уходят.
func (c *Cache[T]) GetOrFetch(key string, fetch func() (T, error)) (T, bool) {
	prev, fetchedAt, had := c.Peek(key)
	if had && c.now().Sub(fetchedAt) < c.ttl(key) {
		metrics.IncCacheLookup(c.kind, "hit")
		return prev, true
	}

	v, err := c.safeFetch(fetch)
	if err == nil {
		c.Set(key, v)
		metrics.IncCacheLookup(c.kind, "miss")
		return v, true
	}

	if had {
		logger.Warn("[CACHE] %s/%s fetch failed, serving stale (age %s): %v",
			c.kind, key, c.now().Sub(fetchedAt).Round(time.Second), err)
		metrics.IncCacheLookup(c.kind, "stale")
		return prev, true
	}

	logger.Warn("[CACHE] %s/%s fetch failed, no cached value: %v", c.kind, key, err)
	metrics.IncCacheLookup(c.kind, "empty")
	var zero T
	return zero, false
}

func (c *Cache[T]) safeFetch(fetch func() (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fetch panic: %v", rec)
		}
	}()
	return fetch()
}

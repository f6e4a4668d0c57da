package stoploss

import (
	"sync"
	"time"

	"emabot/internal/metrics"
)

type cachedATR struct {
	value      float64
	computedAt time.Time
}

// atrCache holds the last computed ATR per symbol. Entries older than ttl are
// dropped when read.
type atrCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedATR
}

func newATRCache(ttl time.Duration) *atrCache {
	return &atrCache{
		ttl:     ttl,
		entries: make(map[string]cachedATR),
	}
}

func (c *atrCache) get(symbol string, now time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok {
		metrics.RecordATRCache(metrics.CacheMiss)
		return 0, false
	}
	age := now.Sub(entry.computedAt)
	if age > c.ttl {
		delete(c.entries, symbol)
		metrics.RecordATRCache(metrics.CacheExpired)
		return 0, false
	}
	metrics.RecordATRCache(metrics.CacheHit)
	return entry.value, true
}

func (c *atrCache) put(symbol string, value float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cachedATR{value: value, computedAt: now}
}

package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// PriceCache holds the last seen close per symbol, sharded to keep the
// kline ingest path and API reads from contending on one lock.
type PriceCache struct {
	shards [numShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

func NewPriceCache() *PriceCache {
	c := &PriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{items: make(map[string]priceEntry)}
	}
	return c
}

func (c *PriceCache) shard(symbol string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%numShards]
}

// Set records the latest price for symbol.
func (c *PriceCache) Set(symbol string, price float64) {
	s := c.shard(symbol)
	s.mu.Lock()
	s.items[symbol] = priceEntry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Get returns the last recorded price for symbol.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	s := c.shard(symbol)
	s.mu.RLock()
	entry, ok := s.items[symbol]
	s.mu.RUnlock()
	return entry.price, ok
}

// GetWithAge returns the price with how long ago it was recorded, so
// callers can tell a live feed from a stalled one.
func (c *PriceCache) GetWithAge(symbol string) (float64, time.Duration, bool) {
	s := c.shard(symbol)
	s.mu.RLock()
	entry, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return entry.price, time.Since(entry.updatedAt), true
}

// Len returns the number of tracked symbols.
func (c *PriceCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

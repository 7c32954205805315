package flow

import (
	"sync"

	"github.com/opd-ai/retime/video"
)

// fieldCache is a bounded FIFO cache of computed flow fields keyed by the
// content digests of the frame pair. Capacity is in pairs; the oldest entry
// is evicted when full.
type fieldCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[[64]byte]*Field
	order    [][64]byte
	hits     uint64
	misses   uint64
}

func newFieldCache(capacity int) *fieldCache {
	return &fieldCache{
		capacity: capacity,
		entries:  make(map[[64]byte]*Field, capacity),
	}
}

func pairKey(a, b *video.Frame) [64]byte {
	var key [64]byte
	da := a.Digest()
	db := b.Digest()
	copy(key[:32], da[:])
	copy(key[32:], db[:])
	return key
}

func (c *fieldCache) get(a, b *video.Frame) (*Field, bool) {
	key := pairKey(a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	field, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return field, ok
}

func (c *fieldCache) put(a, b *video.Frame, field *Field) {
	key := pairKey(a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = field
	c.order = append(c.order, key)
}

func (c *fieldCache) stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

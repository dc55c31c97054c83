package codec

import (
	"container/list"
	"crypto/sha256"
	"sync"

	"challenge-media/internal/metrics"
)

type cacheKey [sha256.Size]byte

type cacheEntry struct {
	key    cacheKey
	bitmap *Bitmap
	size   int64
}

// bitmapCache is a byte-bounded LRU of decoded bitmaps keyed by input hash.
type bitmapCache struct {
	mu       sync.Mutex
	maxBytes int64
	bytes    int64
	enabled  bool
	order    *list.List
	entries  map[cacheKey]*list.Element
}

func newBitmapCache(maxBytes int64) *bitmapCache {
	c := &bitmapCache{
		maxBytes: maxBytes,
		enabled:  maxBytes > 0,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element),
	}
	metrics.CodecCacheEnabled.Set(boolGauge(c.enabled))
	return c
}

func keyFor(data []byte) cacheKey {
	return sha256.Sum256(data)
}

// bitmapSize estimates decoded memory as 4 bytes per pixel.
func bitmapSize(b *Bitmap) int64 {
	return int64(b.Width()) * int64(b.Height()) * 4
}

func (c *bitmapCache) get(key cacheKey) (*Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil, false
	}
	el, ok := c.entries[key]
	if !ok {
		metrics.CodecCacheMisses.Inc()
		return nil, false
	}
	c.order.MoveToFront(el)
	metrics.CodecCacheHits.Inc()
	return el.Value.(*cacheEntry).bitmap, true
}

func (c *bitmapCache) add(key cacheKey, b *Bitmap) {
	size := bitmapSize(b)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || size > c.maxBytes {
		return
	}
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, bitmap: b, size: size})
	c.bytes += size

	for c.bytes > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
	metrics.CodecCacheBytes.Set(float64(c.bytes))
}

func (c *bitmapCache) removeElement(el *list.Element) {
	entry := c.order.Remove(el).(*cacheEntry)
	delete(c.entries, entry.key)
	c.bytes -= entry.size
}

func (c *bitmapCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[cacheKey]*list.Element)
	c.bytes = 0
	metrics.CodecCacheBytes.Set(0)
}

// setEnabled toggles the cache. Disabling drops all entries.
func (c *bitmapCache) setEnabled(enabled bool) {
	c.mu.Lock()
	if c.maxBytes <= 0 {
		enabled = false
	}
	c.enabled = enabled
	c.mu.Unlock()

	if !enabled {
		c.clear()
	}
	metrics.CodecCacheEnabled.Set(boolGauge(enabled))
}

func (c *bitmapCache) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *bitmapCache) usage() (size int64, entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes, len(c.entries)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

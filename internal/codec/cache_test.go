package codec

import (
	"context"
	"image"
	"testing"
)

func TestDecodeUsesCache(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	data := createTestJPEG(t, 64, 64)

	first, err := a.Decode(ctx, data, FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := a.Decode(ctx, data, FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if first != second {
		t.Error("expected second decode to be served from cache")
	}

	a.SetCacheEnabled(false)
	if a.CacheEnabled() {
		t.Fatal("cache still enabled")
	}
	if bytes, entries := a.CacheUsage(); bytes != 0 || entries != 0 {
		t.Errorf("disabled cache still holds %d bytes in %d entries", bytes, entries)
	}
	third, err := a.Decode(ctx, data, FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if third == first {
		t.Error("decode with cache disabled returned cached bitmap")
	}

	a.SetCacheEnabled(true)
	a.SetCacheEnabled(true)
	if !a.CacheEnabled() {
		t.Error("cache not re-enabled")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// Each 100x100 bitmap is estimated at 40000 bytes.
	c := newBitmapCache(90000)
	bm := func() *Bitmap { return &Bitmap{Image: image.NewRGBA(image.Rect(0, 0, 100, 100))} }

	a, b, d := keyFor([]byte("a")), keyFor([]byte("b")), keyFor([]byte("d"))
	c.add(a, bm())
	c.add(b, bm())
	c.get(a)
	c.add(d, bm())

	if _, ok := c.get(b); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.get(a); !ok {
		t.Error("recently used entry was evicted")
	}
	if bytes, entries := c.usage(); bytes != 80000 || entries != 2 {
		t.Errorf("usage = (%d, %d), want (80000, 2)", bytes, entries)
	}
}

func TestCacheSkipsOversizedEntries(t *testing.T) {
	c := newBitmapCache(1000)
	c.add(keyFor([]byte("big")), &Bitmap{Image: image.NewRGBA(image.Rect(0, 0, 100, 100))})
	if _, entries := c.usage(); entries != 0 {
		t.Errorf("oversized bitmap cached, entries = %d", entries)
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	if _, err := a.Decode(ctx, createTestJPEG(t, 32, 32), FormatJPEG); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a.ClearCache()
	a.ClearCache()
	if _, entries := a.CacheUsage(); entries != 0 {
		t.Errorf("entries after ClearCache = %d", entries)
	}
	if !a.CacheEnabled() {
		t.Error("ClearCache must not disable the cache")
	}
}

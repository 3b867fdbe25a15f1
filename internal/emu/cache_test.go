package emu

import "testing"

// nopStream returns a reader backed by an all-NOP buffer, long enough to
// satisfy any Refill window request.
func nopStream() func(addr, size uint64) []byte {
	buf := make([]byte, 0x1000)
	for i := range buf {
		buf[i] = 0x90
	}
	return func(addr, size uint64) []byte { return buf[:size] }
}

func TestDecodeCacheRefillAndLookup(t *testing.T) {
	c := NewDecodeCache()
	c.Refill(0x1000, 64, nopStream())

	d := c.Lookup(0x1000)
	if d == nil {
		t.Fatal("expected a cached decode at the refilled base address")
	}
	if d.Len != 1 {
		t.Fatalf("NOP should decode to length 1, got %d", d.Len)
	}

	d2 := c.Lookup(0x1001)
	if d2 == nil {
		t.Fatal("expected a cached decode for the second NOP in the window")
	}
}

func TestDecodeCacheLookupMiss(t *testing.T) {
	c := NewDecodeCache()
	c.Refill(0x1000, 64, nopStream())
	if c.Lookup(0x5000) != nil {
		t.Fatal("expected a cache miss far outside the refilled window")
	}
}

func TestDecodeCacheInvalidateRangeDropsIntersectingLine(t *testing.T) {
	c := NewDecodeCache()
	c.Refill(0x1000, 64, nopStream())
	c.Refill(0x5000, 64, nopStream())

	c.InvalidateRange(0x1050, 1)

	if c.Lookup(0x1000) != nil {
		t.Fatal("expected the line covering the self-modified address to be dropped")
	}
	if c.Lookup(0x5000) == nil {
		t.Fatal("expected the unrelated line to survive invalidation")
	}
}

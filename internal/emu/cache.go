package emu

// DecodeCache is the per-RIP cache of pre-decoded instructions (spec.md
// §3/§4.4). Grounded on original_source/.../emu/execution.rs's block
// refill (BLOCK_LEN-sized window, padded so a 16-byte-max instruction
// fully fits) and spec.md §9's unconditional-invalidation resolution.
const (
	blockLen    = 0x300
	maxInsnLen  = 16
)

type cacheLine struct {
	start, end uint64 // [start, end) byte range this decode pass covered
	insns      map[uint64]*DecodedInsn
}

type DecodeCache struct {
	lines []*cacheLine
}

func NewDecodeCache() *DecodeCache {
	return &DecodeCache{}
}

// Lookup returns a cached decode for addr, if any.
func (c *DecodeCache) Lookup(addr uint64) *DecodedInsn {
	for _, l := range c.lines {
		if addr >= l.start && addr < l.end {
			if d, ok := l.insns[addr]; ok {
				return d
			}
		}
	}
	return nil
}

// Refill decodes a bounded window starting at addr, reading through
// read (typically AddressSpace.Read), and stores every instruction
// found indexed by its guest address.
func (c *DecodeCache) Refill(addr uint64, mode int, read func(uint64, uint64) []byte) {
	length := uint64(blockLen)
	buf := read(addr, length+maxInsnLen)
	line := &cacheLine{start: addr, end: addr + length, insns: map[uint64]*DecodedInsn{}}
	off := uint64(0)
	for off < length {
		d, err := decodeAt(buf[off:], mode)
		if err != nil || d.Len == 0 {
			break
		}
		d.Addr = addr + off
		line.insns[d.Addr] = d
		off += uint64(d.Len)
	}
	c.lines = append(c.lines, line)
}

// InvalidateRange drops any cache line whose decoded window intersects
// [addr, addr+size). Unconditional, per spec.md §9.
func (c *DecodeCache) InvalidateRange(addr, size uint64) {
	end := addr + size
	kept := c.lines[:0]
	for _, l := range c.lines {
		if addr < l.end && end > l.start {
			continue // drop: intersects the write
		}
		kept = append(kept, l)
	}
	c.lines = kept
}

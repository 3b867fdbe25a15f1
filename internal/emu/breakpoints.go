package emu

// Breakpoints realizes spec.md §3's "Sets of {instruction-count
// targets, RIP targets, memory-read addresses, memory-write
// addresses}." Checked once per instruction boundary by Core.stepOnce
// (RIP/instruction-count) and from AddressSpace's read/write choke
// points (memory breakpoints), matching the same single-choke-point
// discipline the decode-cache invalidator uses.
type Breakpoints struct {
	InsnCounts map[uint64]bool
	RIPs       map[uint64]bool
	ReadAddrs  map[uint64]bool
	WriteAddrs map[uint64]bool

	Hit func(reason string, addr uint64)
}

func NewBreakpoints() *Breakpoints {
	return &Breakpoints{
		InsnCounts: map[uint64]bool{},
		RIPs:       map[uint64]bool{},
		ReadAddrs:  map[uint64]bool{},
		WriteAddrs: map[uint64]bool{},
	}
}

func (b *Breakpoints) AddInsnCount(n uint64)  { b.InsnCounts[n] = true }
func (b *Breakpoints) AddRIP(addr uint64)     { b.RIPs[addr] = true }
func (b *Breakpoints) AddRead(addr uint64)    { b.ReadAddrs[addr] = true }
func (b *Breakpoints) AddWrite(addr uint64)   { b.WriteAddrs[addr] = true }
func (b *Breakpoints) RemoveRIP(addr uint64)  { delete(b.RIPs, addr) }
func (b *Breakpoints) RemoveRead(addr uint64) { delete(b.ReadAddrs, addr) }

func (b *Breakpoints) fire(reason string, addr uint64) {
	if b.Hit != nil {
		b.Hit(reason, addr)
	}
}

// checkStep is called by Core.stepOnce before executing the instruction
// at rip, with insnCount being the 1-based ordinal of that instruction
// (the count already includes it). Returns true if a breakpoint fired.
func (b *Breakpoints) checkStep(rip, insnCount uint64) bool {
	hit := false
	if b.RIPs[rip] {
		b.fire("rip", rip)
		hit = true
	}
	if b.InsnCounts[insnCount] {
		b.fire("insn-count", insnCount)
		hit = true
	}
	return hit
}

func (b *Breakpoints) checkRead(addr, size uint64) {
	for i := uint64(0); i < size; i++ {
		if b.ReadAddrs[addr+i] {
			b.fire("mem-read", addr+i)
		}
	}
}

func (b *Breakpoints) checkWrite(addr uint64, data []byte) {
	for i := range data {
		if b.WriteAddrs[addr+uint64(i)] {
			b.fire("mem-write", addr+uint64(i))
		}
	}
}

// AttachBreakpoints installs bp's memory-read/write checks onto the
// core's address space and bp's RIP/instruction-count checks into the
// per-instruction step path. Call once after NewCore.
func (c *Core) AttachBreakpoints(bp *Breakpoints) {
	c.Breakpoints = bp
	c.Maps.SetReadHook(bp.checkRead)
	prevWrite := c.Maps.onWrite
	c.Maps.SetWriteHook(func(addr uint64, data []byte) {
		bp.checkWrite(addr, data)
		if prevWrite != nil {
			prevWrite(addr, data)
		}
	})
}

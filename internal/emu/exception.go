package emu

// Context64 is the fixed-layout CONTEXT record snapshotted to guest
// memory on exception dispatch and consumed by the handler's RET path
// (spec.md §4.6, supplemented per original_source/.../structures/kernel64.rs).
type Context64 struct {
	RFlags uint32
	RIP    uint64
	Regs   [numGPR]uint64
	XMM    [16]U128
}

func snapshotContext(t *Thread) Context64 {
	c := Context64{
		RFlags: t.Flags.Dump(),
		RIP:    t.Regs.RIP,
		XMM:    t.Regs.XMM,
	}
	for i := Reg(0); i < numGPR; i++ {
		c.Regs[i] = t.Regs.Get64(i)
	}
	return c
}

func restoreContext(t *Thread, c Context64) {
	t.Flags.Load(c.RFlags)
	t.Regs.RIP = c.RIP
	t.Regs.XMM = c.XMM
	for i := Reg(0); i < numGPR; i++ {
		t.Regs.Set64(i, c.Regs[i])
	}
}

// contextScratchSize covers RFlags+RIP+16 GPRs+16 XMM (see writeContext's
// layout below), rounded up to a 16-byte-aligned allocation.
const contextScratchSize = 16 + uint64(numGPR)*8 + 16*16

// contextScratchBase lazily allocates a dedicated heap region for the
// CONTEXT record the way tebBase/pebBase/localeBase do (operands.go),
// instead of a hardcoded well-known address: a fixed constant either
// collides with the default stack region (64-bit) or misses every
// mapped region entirely (32-bit), so exception() would either corrupt
// live guest memory or panic on every guest fault.
func (c *Core) contextScratchBase() uint64 {
	return c.lazyAlloc(&c.contextAddr, "context_scratch", contextScratchSize)
}

// exception implements spec.md §4.6's selection order: VEH if
// installed, else UEF if installed, else SEH by walking the guest-memory
// linked list rooted at the thread's SEH head. Returns ErrNoHandler if
// none is installed, per spec.md §4.6/§7.
func (c *Core) exception(t *Thread, f *Fault) error {
	ctx := snapshotContext(t)
	c.writeContext(ctx)

	if t.VEHHandler != 0 {
		c.dispatchHandler(t, t.VEHHandler)
		return nil
	}
	if t.UEFHandler != 0 {
		c.dispatchHandler(t, t.UEFHandler)
		return nil
	}
	if handler, ok := c.walkSEH(t); ok {
		c.dispatchHandler(t, handler)
		return nil
	}
	return &ErrNoHandler{Fault: f}
}

// walkSEH reads the guest-memory SEH chain: each record is
// {next uint64; handler uint64} rooted at t.SEHHead (FS:[0]).
func (c *Core) walkSEH(t *Thread) (handler uint64, ok bool) {
	node := t.SEHHead
	for node != 0 && node != 0xFFFFFFFFFFFFFFFF {
		rec := SEHRecord{
			Next:    c.Maps.ReadU64(node),
			Handler: c.Maps.ReadU64(node + 8),
		}
		if rec.Handler != 0 {
			return rec.Handler, true
		}
		node = rec.Next
	}
	return 0, false
}

func (c *Core) writeContext(ctx Context64) {
	addr := c.contextScratchBase()
	if addr == 0 {
		return // heap exhausted; the handler still runs against the register file
	}
	c.Maps.WriteU32(addr, ctx.RFlags)
	c.Maps.WriteU64(addr+8, ctx.RIP)
	for i, v := range ctx.Regs {
		c.Maps.WriteU64(addr+16+uint64(i)*8, v)
	}
	xmmBase := addr + 16 + uint64(len(ctx.Regs))*8
	for i, v := range ctx.XMM {
		c.Maps.WriteU128(xmmBase+uint64(i)*16, v)
	}
}

// dispatchHandler switches RIP to the handler; the handler returns
// through the normal RET path once it has inspected/modified the
// CONTEXT record, per spec.md §4.6.
func (c *Core) dispatchHandler(t *Thread, handler uint64) {
	t.CallStack = append(t.CallStack, t.Regs.RIP)
	t.Regs.RIP = handler
}

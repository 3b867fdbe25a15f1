package emu

// RETURNTHREAD is the sentinel RIP value that parks the current thread
// and revives the main thread (spec.md §6 "Sentinels").
const RETURNTHREAD uint64 = 0xFFFFFFFFFFFFFFFF

// StubHook is invoked by the library boundary once control has already
// "returned" to the caller (spec.md §4.8 step 2): it reads its
// arguments per the calling convention, writes its result to RAX/EAX,
// and returns. Returning true asks the core to stop the run loop (used
// by process-exit-style stubs).
type StubHook func(t *Thread, c *Core) bool

// StubRegistry is the minimal interface the core needs from the
// external stub registry (internal/stubs), kept here to avoid a import
// cycle between internal/emu and internal/stubs.
type StubRegistry interface {
	// Resolve returns the hook installed at addr, if any.
	Resolve(addr uint64) (StubHook, bool)
}

// SetRIP implements spec.md §4.5's "Control-flow transitions" /
// set_rip(addr, is_branch). It classifies the target and, for library
// addresses, performs the full dispatch-contract handshake of §4.8.
func (c *Core) SetRIP(t *Thread, addr uint64, isBranch bool) error {
	if addr == RETURNTHREAD {
		t.Suspended = true
		if main := c.Sched.Threads(); len(main) > 0 {
			c.Sched.current = 0
		}
		return nil
	}

	if !c.Maps.IsMapped(addr) {
		f := &Fault{Kind: SettingRipToNonMappedAddr, Addr: addr}
		return c.exception(t, f)
	}

	if c.Maps.InLibraryZone(addr) && c.Stubs != nil {
		return c.dispatchLibrary(t, addr)
	}

	t.Regs.RIP = addr
	return nil
}

// dispatchLibrary implements spec.md §4.8 steps 2-5: pop the return
// address, "return" immediately so the stub appears atomic from the
// guest's perspective, invoke the registered hook, then, if the hook
// asked to stop (ExitProcess/TerminateProcess), set breakDecodeLoop so
// stepOnce requests a stop at the end of this instruction.
func (c *Core) dispatchLibrary(t *Thread, addr uint64) error {
	var retAddr uint64
	if t.Is32Bit {
		retAddr = uint64(c.Maps.ReadU32(t.Regs.Get64(RSP)))
		t.Regs.Set64(RSP, t.Regs.Get64(RSP)+4)
	} else {
		retAddr = c.Maps.ReadU64(t.Regs.Get64(RSP))
		t.Regs.Set64(RSP, t.Regs.Get64(RSP)+8)
	}
	t.Regs.RIP = retAddr // "returns" before the stub runs, per §4.8 step 2

	hook, ok := c.Stubs.Resolve(addr)
	if !ok {
		// No stub registered and no fallback installed: treat as a
		// benign no-op return, matching the teacher's fallback-stub
		// convention (internal/stubs/registry.go InstallFallbacks).
		return nil
	}
	c.breakDecodeLoop = hook(t, c)
	return nil
}

// --- calling-convention helpers (spec.md §4.8, supplemented from
// original_source/.../emu/execution.rs call32/call64/linux_call64) ---

const callSentinel = 0x0FEE1DEAD0000000

// Call32 implements 32-bit cdecl/stdcall argument marshalling: args are
// pushed in reverse order above a pushed sentinel return address.
func (c *Core) Call32(t *Thread, addr uint64, args []uint32) uint32 {
	sp := uint32(t.Regs.Get64(RSP))
	for i := len(args) - 1; i >= 0; i-- {
		sp -= 4
		c.Maps.WriteU32(uint64(sp), args[i])
	}
	sp -= 4
	c.Maps.WriteU32(uint64(sp), uint32(callSentinel))
	t.Regs.Set64(RSP, uint64(sp))
	savedRIP := t.Regs.RIP
	t.Regs.RIP = addr
	c.runUntilSentinel(t, uint64(callSentinel))
	t.Regs.RIP = savedRIP
	return t.Regs.Get32(RAX)
}

// win64ArgRegs / sysvArgRegs are the integer argument registers for
// Win64 and SysV64, in order.
var win64ArgRegs = [4]Reg{RCX, RDX, R8, R9}
var sysvArgRegs = [6]Reg{RDI, RSI, RDX, RCX, R8, R9}

// Call64Win sets up a Win64 frame: RCX/RDX/R8/R9 then stack above a
// 32-byte shadow space, with 16-byte stack alignment at the call.
func (c *Core) Call64Win(t *Thread, addr uint64, args []uint64) uint64 {
	sp := t.Regs.Get64(RSP)
	for i, reg := range win64ArgRegs {
		if i < len(args) {
			t.Regs.Set64(reg, args[i])
		}
	}
	stackArgs := args
	if len(args) > 4 {
		stackArgs = args[4:]
	} else {
		stackArgs = nil
	}
	frame := uint64(32) + uint64(len(stackArgs))*8 + 8 // shadow + args + return addr
	if rem := frame % 16; rem != 0 {
		frame += 16 - rem
	}
	sp -= frame
	for i, a := range stackArgs {
		c.Maps.WriteU64(sp+8+32+uint64(i)*8, a)
	}
	retSlot := sp
	c.Maps.WriteU64(retSlot, callSentinel)
	t.Regs.Set64(RSP, retSlot)
	savedRIP := t.Regs.RIP
	t.Regs.RIP = addr
	c.runUntilSentinel(t, callSentinel)
	t.Regs.RIP = savedRIP
	return t.Regs.Get64(RAX)
}

// Call64SysV sets up a System V AMD64 frame: RDI/RSI/RDX/RCX/R8/R9 then
// stack, no shadow space.
func (c *Core) Call64SysV(t *Thread, addr uint64, args []uint64) uint64 {
	for i, reg := range sysvArgRegs {
		if i < len(args) {
			t.Regs.Set64(reg, args[i])
		}
	}
	var stackArgs []uint64
	if len(args) > 6 {
		stackArgs = args[6:]
	}
	sp := t.Regs.Get64(RSP)
	frame := uint64(len(stackArgs))*8 + 8
	if rem := frame % 16; rem != 0 {
		frame += 16 - rem
	}
	sp -= frame
	for i, a := range stackArgs {
		c.Maps.WriteU64(sp+8+uint64(i)*8, a)
	}
	retSlot := sp
	c.Maps.WriteU64(retSlot, callSentinel)
	t.Regs.Set64(RSP, retSlot)
	savedRIP := t.Regs.RIP
	t.Regs.RIP = addr
	c.runUntilSentinel(t, callSentinel)
	t.Regs.RIP = savedRIP
	return t.Regs.Get64(RAX)
}

// runUntilSentinel drives the core loop until the thread's RIP reaches
// the synthetic return address, implementing the "run the emulator
// until that sentinel is reached" half of §4.8's call32/call64 helpers.
func (c *Core) runUntilSentinel(t *Thread, sentinel uint64) {
	for t.Regs.RIP != sentinel {
		if err := c.stepOnce(t); err != nil {
			return
		}
	}
}

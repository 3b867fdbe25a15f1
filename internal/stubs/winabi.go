package stubs

import "github.com/vireolabs/mwemu/internal/emu"

// sysvArgRegs is the System V AMD64 integer argument order (ELF64/Linux
// guests), mirroring internal/emu/library.go's Call64SysV helper used on
// the call-out path.
var sysvArgRegs = [6]emu.Reg{emu.RDI, emu.RSI, emu.RDX, emu.RCX, emu.R8, emu.R9}

// Arg reads stub argument n (0-based) under the calling convention of
// the current thread, per spec.md §4.8 point 4's three conventions:
// cdecl/stdcall (all arguments on the stack) for 32-bit threads, System
// V AMD64 (RDI/RSI/RDX/RCX/R8/R9, then the stack with no shadow space)
// for 64-bit Linux threads, and Win64 fastcall (RCX/RDX/R8/R9, then the
// stack above the 32-byte shadow space) for every other 64-bit thread.
// By the time a hook runs, dispatchLibrary has already popped the
// return address and "returned" RIP to the caller (spec.md §4.8 step
// 2), so RSP already points at the caller's stack frame, not at a
// return address.
func Arg(t *emu.Thread, c *emu.Core, n int) uint64 {
	if t.Is32Bit {
		sp := t.Regs.Get64(emu.RSP)
		return uint64(c.Maps.ReadU32(sp + uint64(n)*4))
	}
	if t.Linux {
		if n < len(sysvArgRegs) {
			return t.Regs.Get64(sysvArgRegs[n])
		}
		sp := t.Regs.Get64(emu.RSP)
		return c.Maps.ReadU64(sp + uint64(n-len(sysvArgRegs))*8)
	}
	switch n {
	case 0:
		return t.Regs.Get64(emu.RCX)
	case 1:
		return t.Regs.Get64(emu.RDX)
	case 2:
		return t.Regs.Get64(emu.R8)
	case 3:
		return t.Regs.Get64(emu.R9)
	default:
		sp := t.Regs.Get64(emu.RSP)
		return c.Maps.ReadU64(sp + 32 + uint64(n-4)*8)
	}
}

// SetReturn writes a stub's result to RAX/EAX per the thread's bitness.
func SetReturn(t *emu.Thread, v uint64) {
	if t.Is32Bit {
		t.Regs.Set32(emu.RAX, uint32(v))
	} else {
		t.Regs.Set64(emu.RAX, v)
	}
}

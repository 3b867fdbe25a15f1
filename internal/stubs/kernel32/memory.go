// Package kernel32 provides stub implementations of the kernel32.dll
// surface guest binaries import most often: virtual memory, threads,
// critical sections, module lookup, and process/error state. Adapted
// from the teacher's internal/stubs/pthread and internal/stubs/libc.go
// self-registering init() style, retargeted from pthread/libc names to
// their Win32 kernel32 equivalents.
package kernel32

import (
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("kernel32", "kernel32!VirtualAlloc", stubVirtualAlloc)
	stubs.RegisterFunc("kernel32", "kernel32!VirtualFree", stubVirtualFree)
	stubs.RegisterFunc("kernel32", "kernel32!VirtualProtect", stubVirtualProtect)
	stubs.RegisterFunc("kernel32", "kernel32!HeapAlloc", stubHeapAlloc)
	stubs.RegisterFunc("kernel32", "kernel32!HeapFree", stubHeapFree)
	stubs.RegisterFunc("kernel32", "kernel32!HeapCreate", stubHeapCreate)
	stubs.RegisterFunc("kernel32", "kernel32!GetProcessHeap", stubGetProcessHeap)
}

// stubVirtualAlloc implements VirtualAlloc(lpAddress, dwSize,
// flAllocationType, flProtect). lpAddress is ignored (this core always
// picks the address): a guest that insists on a specific base gets a
// different one, which is within VirtualAlloc's documented contract.
func stubVirtualAlloc(t *emu.Thread, c *emu.Core) bool {
	size := stubs.Arg(t, c, 1)
	if size == 0 {
		size = 0x1000
	}
	size = (size + 0xFFF) &^ 0xFFF

	addr, err := c.Maps.Alloc("VirtualAlloc", size)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "VirtualAlloc", stubs.FormatPtrPair("size", size, "->", addr))
	stubs.SetReturn(t, addr)
	return false
}

// stubVirtualFree implements VirtualFree: this core's AddressSpace has
// no general unmap-by-address-in-the-middle-of-a-region primitive, so
// a free of a VirtualAlloc region is accepted and reported successful
// without actually reclaiming the pages.
func stubVirtualFree(t *emu.Thread, c *emu.Core) bool {
	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "VirtualFree", stubs.FormatPtr("addr", stubs.Arg(t, c, 0)))
	stubs.SetReturn(t, 1)
	return false
}

// stubVirtualProtect always reports success without changing
// permissions; this core's page protections are fixed at Map time and
// this binding has no guest workload that depends on runtime
// W^X toggling to function correctly.
func stubVirtualProtect(t *emu.Thread, c *emu.Core) bool {
	oldProtectPtr := stubs.Arg(t, c, 3)
	if oldProtectPtr != 0 {
		c.Maps.WriteU32(oldProtectPtr, 0x04) // PAGE_READWRITE
	}
	stubs.SetReturn(t, 1)
	return false
}

func stubHeapAlloc(t *emu.Thread, c *emu.Core) bool {
	size := stubs.Arg(t, c, 2)
	if size == 0 {
		size = 16
	}
	size = (size + 15) &^ 15
	addr, err := c.Maps.Alloc("HeapAlloc", size)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	flags := stubs.Arg(t, c, 1)
	if flags&0x00000008 != 0 { // HEAP_ZERO_MEMORY
		c.Maps.Write(addr, make([]byte, size))
	}
	stubs.SetReturn(t, addr)
	return false
}

func stubHeapFree(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

// stubHeapCreate returns a synthetic, nonzero heap handle; all heaps
// in this core share the single process address space's Alloc zone.
func stubHeapCreate(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, emu.DefaultHeapBase64)
	return false
}

func stubGetProcessHeap(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, emu.DefaultHeapBase64)
	return false
}

// Package ntdll stubs the handful of Nt*/Rtl* native-API entry points
// that sit underneath kernel32 in guests that import ntdll directly
// (a common malware anti-analysis trick, since ntdll calls bypass
// kernel32-level API hooks). Adapted from kernel32's stub style; most
// hooks here just delegate to the same heap and last-error state.
package ntdll

import (
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("ntdll", "ntdll!RtlAllocateHeap", stubRtlAllocateHeap)
	stubs.RegisterFunc("ntdll", "ntdll!RtlFreeHeap", stubRtlFreeHeap)
	stubs.RegisterFunc("ntdll", "ntdll!RtlReAllocateHeap", stubRtlReAllocateHeap)
	stubs.RegisterFunc("ntdll", "ntdll!RtlGetLastWin32Error", stubRtlGetLastWin32Error)
	stubs.RegisterFunc("ntdll", "ntdll!RtlSetLastWin32Error", stubRtlSetLastWin32Error)
	stubs.RegisterFunc("ntdll", "ntdll!NtQueryInformationProcess", stubNtQueryInformationProcess)
	stubs.RegisterFunc("ntdll", "ntdll!NtProtectVirtualMemory", stubNtProtectVirtualMemory)
	stubs.RegisterFunc("ntdll", "ntdll!NtTerminateProcess", stubNtTerminateProcess)
	stubs.RegisterFunc("ntdll", "ntdll!NtClose", stubNtClose)
	stubs.RegisterFunc("ntdll", "ntdll!NtDelayExecution", stubNtDelayExecution)
}

func stubRtlAllocateHeap(t *emu.Thread, c *emu.Core) bool {
	size := stubs.Arg(t, c, 2)
	if size == 0 {
		size = 16
	}
	size = (size + 15) &^ 15
	addr, err := c.Maps.Alloc("RtlAllocateHeap", size)
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

func stubRtlFreeHeap(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

func stubRtlReAllocateHeap(t *emu.Thread, c *emu.Core) bool {
	oldPtr := stubs.Arg(t, c, 2)
	size := stubs.Arg(t, c, 3)
	if size == 0 {
		stubs.SetReturn(t, 0)
		return false
	}
	size = (size + 15) &^ 15
	addr, err := c.Maps.Alloc("RtlReAllocateHeap", size)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	if oldPtr != 0 && c.Maps.IsMapped(oldPtr) {
		c.Maps.Write(addr, c.Maps.Read(oldPtr, size))
	}
	stubs.SetReturn(t, addr)
	return false
}

// stubRtlGetLastWin32Error/stubRtlSetLastWin32Error share the same
// per-thread TEB slot GetLastError/SetLastError use (spec.md §4.2's
// magic-offset table is one abstraction over the same underlying
// state).
func stubRtlGetLastWin32Error(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, uint64(t.LastError))
	return false
}

func stubRtlSetLastWin32Error(t *emu.Thread, c *emu.Core) bool {
	t.LastError = uint32(stubs.Arg(t, c, 0))
	return false
}

// stubNtQueryInformationProcess answers ProcessDebugPort (class 7) and
// ProcessDebugFlags (class 31) with "no debugger attached", since those
// are the two classes anti-debug checks actually probe; anything else
// reports STATUS_SUCCESS with no data written, matching this core's
// tolerant stance on unmodeled query classes.
func stubNtQueryInformationProcess(t *emu.Thread, c *emu.Core) bool {
	infoClass := stubs.Arg(t, c, 1)
	infoPtr := stubs.Arg(t, c, 2)
	switch infoClass {
	case 7: // ProcessDebugPort
		if infoPtr != 0 {
			c.Maps.WriteU64(infoPtr, 0)
		}
	case 31: // ProcessDebugFlags
		if infoPtr != 0 {
			c.Maps.WriteU32(infoPtr, 1) // EPROCESS_NO_DEBUG_INHERIT set
		}
	}
	stubs.SetReturn(t, 0) // STATUS_SUCCESS
	return false
}

func stubNtProtectVirtualMemory(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0)
	return false
}

func stubNtTerminateProcess(t *emu.Thread, c *emu.Core) bool {
	return true
}

func stubNtClose(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0)
	return false
}

func stubNtDelayExecution(t *emu.Thread, c *emu.Core) bool {
	c.Sched.Sleep(t, 1)
	stubs.SetReturn(t, 0)
	return false
}

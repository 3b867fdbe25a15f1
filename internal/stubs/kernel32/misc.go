package kernel32

import (
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("kernel32", "kernel32!GetLastError", stubGetLastError)
	stubs.RegisterFunc("kernel32", "kernel32!SetLastError", stubSetLastError)
	stubs.RegisterFunc("kernel32", "kernel32!ExitProcess", stubExitProcess)
	stubs.RegisterFunc("kernel32", "kernel32!TerminateProcess", stubExitProcess)
	stubs.RegisterFunc("kernel32", "kernel32!GetSystemTimeAsFileTime", stubGetSystemTimeAsFileTime)
	stubs.RegisterFunc("kernel32", "kernel32!QueryPerformanceCounter", stubQueryPerformanceCounter)
	stubs.RegisterFunc("kernel32", "kernel32!QueryPerformanceFrequency", stubQueryPerformanceFrequency)
	stubs.RegisterFunc("kernel32", "kernel32!IsDebuggerPresent", stubIsDebuggerPresent)
	stubs.RegisterFunc("kernel32", "kernel32!OutputDebugStringA", stubOutputDebugStringA)
}

func stubGetLastError(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, uint64(t.LastError))
	return false
}

func stubSetLastError(t *emu.Thread, c *emu.Core) bool {
	t.LastError = uint32(stubs.Arg(t, c, 0))
	return false
}

// stubExitProcess stops the run loop entirely, the only kernel32 hook
// in this package that returns true (spec.md §4.8's "stop the run
// loop" half of the StubHook contract).
func stubExitProcess(t *emu.Thread, c *emu.Core) bool {
	code := stubs.Arg(t, c, 0)
	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "ExitProcess", stubs.FormatPtr("code", code))
	return true
}

// stubGetSystemTimeAsFileTime writes a fixed epoch, keeping emulation
// runs deterministic across replays rather than sampling the host
// clock.
func stubGetSystemTimeAsFileTime(t *emu.Thread, c *emu.Core) bool {
	ptr := stubs.Arg(t, c, 0)
	const fixedFiletime uint64 = 132223104000000000 // 2020-01-01T00:00:00Z
	if ptr != 0 {
		c.Maps.WriteU64(ptr, fixedFiletime)
	}
	return false
}

var perfCounterTicks uint64

// stubQueryPerformanceCounter hands back a monotonically increasing
// counter driven purely by call count, so repeated measurement loops
// in the guest terminate instead of racing the host's real clock.
func stubQueryPerformanceCounter(t *emu.Thread, c *emu.Core) bool {
	ptr := stubs.Arg(t, c, 0)
	perfCounterTicks++
	if ptr != 0 {
		c.Maps.WriteU64(ptr, perfCounterTicks)
	}
	stubs.SetReturn(t, 1)
	return false
}

func stubQueryPerformanceFrequency(t *emu.Thread, c *emu.Core) bool {
	ptr := stubs.Arg(t, c, 0)
	if ptr != 0 {
		c.Maps.WriteU64(ptr, 10000000)
	}
	stubs.SetReturn(t, 1)
	return false
}

func stubIsDebuggerPresent(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0)
	return false
}

func stubOutputDebugStringA(t *emu.Thread, c *emu.Core) bool {
	msg, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "OutputDebugStringA", msg)
	return false
}

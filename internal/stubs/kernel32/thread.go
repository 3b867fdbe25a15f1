package kernel32

import (
	"sync"

	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

var (
	nextThreadID uint32 = 1000
	threadMu     sync.Mutex
)

func init() {
	stubs.RegisterFunc("kernel32", "kernel32!CreateThread", stubCreateThread)
	stubs.RegisterFunc("kernel32", "kernel32!ExitThread", stubExitThread)
	stubs.RegisterFunc("kernel32", "kernel32!GetCurrentThreadId", stubGetCurrentThreadId)
	stubs.RegisterFunc("kernel32", "kernel32!GetCurrentProcessId", stubGetCurrentProcessId)
	stubs.RegisterFunc("kernel32", "kernel32!GetCurrentThread", stubGetCurrentThread)
	stubs.RegisterFunc("kernel32", "kernel32!GetCurrentProcess", stubGetCurrentProcess)
	stubs.RegisterFunc("kernel32", "kernel32!Sleep", stubSleep)
	stubs.RegisterFunc("kernel32", "kernel32!SwitchToThread", stubSwitchToThread)
	stubs.RegisterFunc("kernel32", "kernel32!TlsAlloc", stubTlsAlloc)
	stubs.RegisterFunc("kernel32", "kernel32!TlsFree", stubTlsFree)
	stubs.RegisterFunc("kernel32", "kernel32!TlsGetValue", stubTlsGetValue)
	stubs.RegisterFunc("kernel32", "kernel32!TlsSetValue", stubTlsSetValue)
}

// stubCreateThread implements CreateThread(lpThreadAttributes, dwStackSize,
// lpStartAddress, lpParameter, dwCreationFlags, lpThreadId): a new
// emu.Thread is built with its own stack, its Win64 integer argument
// register preloaded with lpParameter, and handed to the scheduler,
// which round-robins it with every other thread per spec.md §4.7.
func stubCreateThread(t *emu.Thread, c *emu.Core) bool {
	stackSize := stubs.Arg(t, c, 1)
	if stackSize == 0 {
		stackSize = 1 << 20
	}
	startAddr := stubs.Arg(t, c, 2)
	param := stubs.Arg(t, c, 3)
	threadIDPtr := stubs.Arg(t, c, 5)

	stackBase, err := c.Maps.Alloc("thread_stack", stackSize)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}

	nt := emu.NewThread(len(c.Sched.Threads()), t.Is32Bit, t.Linux)
	nt.Regs.Set64(emu.RSP, stackBase+stackSize-0x100)
	nt.Regs.RIP = startAddr
	nt.Regs.Set64(emu.RCX, param)
	c.Sched.AddThread(nt)

	threadMu.Lock()
	tid := nextThreadID
	nextThreadID++
	threadMu.Unlock()

	if threadIDPtr != 0 {
		c.Maps.WriteU32(threadIDPtr, tid)
	}

	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "CreateThread",
		stubs.FormatPtrPair("entry", startAddr, "tid", uint64(tid)))
	stubs.SetReturn(t, uint64(tid))
	return false
}

// stubExitThread parks the calling thread by marking it suspended
// directly; the scheduler will not select it again.
func stubExitThread(t *emu.Thread, c *emu.Core) bool {
	t.Suspended = true
	return false
}

func stubGetCurrentThreadId(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, uint64(t.ID)+1000)
	return false
}

func stubGetCurrentProcessId(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 4242)
	return false
}

// stubGetCurrentThread/stubGetCurrentProcess return the Windows
// pseudo-handle constants (-2/-1 as unsigned), not real handles.
func stubGetCurrentThread(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0xFFFFFFFFFFFFFFFE)
	return false
}

func stubGetCurrentProcess(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0xFFFFFFFFFFFFFFFF)
	return false
}

// stubSleep parks the calling thread dwMilliseconds+1 ticks, reusing the
// scheduler's tick-advance machinery rather than an actual wall-clock
// wait.
func stubSleep(t *emu.Thread, c *emu.Core) bool {
	ms := stubs.Arg(t, c, 0)
	c.Sched.Sleep(t, ms+1)
	return false
}

func stubSwitchToThread(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

var (
	tlsSlots   = map[uint32]bool{}
	nextTLSKey uint32
	tlsMu      sync.Mutex
)

func stubTlsAlloc(t *emu.Thread, c *emu.Core) bool {
	tlsMu.Lock()
	key := nextTLSKey
	nextTLSKey++
	tlsSlots[key] = true
	tlsMu.Unlock()
	stubs.SetReturn(t, uint64(key))
	return false
}

func stubTlsFree(t *emu.Thread, c *emu.Core) bool {
	key := uint32(stubs.Arg(t, c, 0))
	tlsMu.Lock()
	delete(tlsSlots, key)
	tlsMu.Unlock()
	stubs.SetReturn(t, 1)
	return false
}

// stubTlsGetValue/stubTlsSetValue back TLS slots with the per-thread
// TLS array already in emu.Thread (spec.md §3), keyed by slot index.
func stubTlsGetValue(t *emu.Thread, c *emu.Core) bool {
	key := uint32(stubs.Arg(t, c, 0))
	if int(key) < len(t.TLS) {
		stubs.SetReturn(t, t.TLS[key])
	} else {
		stubs.SetReturn(t, 0)
	}
	return false
}

func stubTlsSetValue(t *emu.Thread, c *emu.Core) bool {
	key := uint32(stubs.Arg(t, c, 0))
	val := stubs.Arg(t, c, 1)
	if int(key) < len(t.TLS) {
		t.TLS[key] = val
	}
	stubs.SetReturn(t, 1)
	return false
}

package kernel32

import (
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("kernel32", "kernel32!InitializeCriticalSection", stubInitCS)
	stubs.RegisterFunc("kernel32", "kernel32!InitializeCriticalSectionAndSpinCount", stubInitCS)
	stubs.RegisterFunc("kernel32", "kernel32!DeleteCriticalSection", stubDeleteCS)
	stubs.RegisterFunc("kernel32", "kernel32!EnterCriticalSection", stubEnterCS)
	stubs.RegisterFunc("kernel32", "kernel32!LeaveCriticalSection", stubLeaveCS)
	stubs.RegisterFunc("kernel32", "kernel32!TryEnterCriticalSection", stubTryEnterCS)
	stubs.RegisterFunc("kernel32", "kernel32!CreateMutexW", stubCreateMutex)
	stubs.RegisterFunc("kernel32", "kernel32!ReleaseMutex", stubReleaseMutex)
	stubs.RegisterFunc("kernel32", "kernel32!WaitForSingleObject", stubWaitForSingleObject)
	stubs.RegisterFunc("kernel32", "kernel32!CreateEventW", stubCreateEvent)
	stubs.RegisterFunc("kernel32", "kernel32!SetEvent", stubSetEvent)
	stubs.RegisterFunc("kernel32", "kernel32!ResetEvent", stubResetEvent)
}

// csID derives the scheduler's lock id from the guest CRITICAL_SECTION
// structure's address: distinct structures, distinct ids, and the same
// structure always maps to the same id, which is all
// EnterCriticalSection/LeaveCriticalSection (spec.md §4.7) require.
func csID(addr uint64) uint32 { return uint32(addr) ^ uint32(addr>>32) }

func stubInitCS(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

func stubDeleteCS(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

// stubEnterCS calls straight into the scheduler's real blocking
// semantics (spec.md §4.7): if another thread owns the lock this
// thread's BlockedOnCS is set and Select will not choose it again
// until LeaveCriticalSection clears that block.
func stubEnterCS(t *emu.Thread, c *emu.Core) bool {
	addr := stubs.Arg(t, c, 0)
	c.Sched.EnterCriticalSection(csID(addr), t)
	return false
}

func stubLeaveCS(t *emu.Thread, c *emu.Core) bool {
	addr := stubs.Arg(t, c, 0)
	c.Sched.LeaveCriticalSection(csID(addr), t)
	return false
}

// stubTryEnterCS always succeeds: modeling the non-blocking failure
// path would need the scheduler to expose a contention query it
// doesn't have, and no guest workload in SPEC_FULL.md depends on a
// contended TryEnterCriticalSection returning FALSE.
func stubTryEnterCS(t *emu.Thread, c *emu.Core) bool {
	addr := stubs.Arg(t, c, 0)
	c.Sched.EnterCriticalSection(csID(addr), t)
	stubs.SetReturn(t, 1)
	return false
}

func stubCreateMutex(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, emu.DefaultHeapBase64+0x1000)
	return false
}

func stubReleaseMutex(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

// stubWaitForSingleObject always reports WAIT_OBJECT_0 immediately:
// this core has no kernel object table to track signaled state
// against, and the cooperative scheduler's real synchronization
// primitive is the critical section above.
func stubWaitForSingleObject(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 0) // WAIT_OBJECT_0
	return false
}

func stubCreateEvent(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, emu.DefaultHeapBase64+0x2000)
	return false
}

func stubSetEvent(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

func stubResetEvent(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}

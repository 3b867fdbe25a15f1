package kernel32

import (
	"testing"

	"github.com/vireolabs/mwemu/internal/config"
	"github.com/vireolabs/mwemu/internal/emu"
)

func newCore() *emu.Core {
	return emu.NewCore(config.Default())
}

func TestEnterLeaveCriticalSectionRoundTrip(t *testing.T) {
	c := newCore()
	owner := emu.NewThread(0, false, false)
	contender := emu.NewThread(1, false, false)
	c.Sched.AddThread(owner)
	c.Sched.AddThread(contender)

	owner.Regs.Set64(emu.RCX, 0x1000) // CRITICAL_SECTION* argument
	stubEnterCS(owner, c)

	contender.Regs.Set64(emu.RCX, 0x1000)
	stubEnterCS(contender, c)
	if contender.BlockedOnCS == nil {
		t.Fatal("expected the contending thread to block on the owned critical section")
	}

	owner.Regs.Set64(emu.RCX, 0x1000)
	stubLeaveCS(owner, c)
	if contender.BlockedOnCS != nil {
		t.Fatal("expected LeaveCriticalSection to wake the contending thread")
	}
}

func TestTryEnterCriticalSectionAlwaysSucceeds(t *testing.T) {
	c := newCore()
	th := emu.NewThread(0, false, false)
	c.Sched.AddThread(th)
	th.Regs.Set64(emu.RCX, 0x2000)

	stubTryEnterCS(th, c)
	if th.Regs.Get64(emu.RAX) != 1 {
		t.Fatalf("RAX = %d, want 1 (TRUE)", th.Regs.Get64(emu.RAX))
	}
}

func TestWaitForSingleObjectReturnsSignaled(t *testing.T) {
	th := emu.NewThread(0, false, false)
	stubWaitForSingleObject(th, nil)
	if th.Regs.Get64(emu.RAX) != 0 {
		t.Fatalf("RAX = %d, want 0 (WAIT_OBJECT_0)", th.Regs.Get64(emu.RAX))
	}
}

package emu

import (
	"context"
	"testing"

	"github.com/vireolabs/mwemu/internal/config"
)

func newTestCoreWithCode(t *testing.T, code []byte) (*Core, *Thread) {
	t.Helper()
	c := NewCore(config.Default())
	// PermRWX so the harness can populate the region via Write below;
	// AddressSpace.Write enforces the same write-permission check as any
	// guest write (requireWrite), so a PermRX-only region would panic here.
	if _, err := c.Maps.Map("code", 0x1000, 0x1000, PermRWX); err != nil {
		t.Fatal(err)
	}
	c.Maps.Write(0x1000, code)

	th := NewThread(0, false, false)
	th.Regs.RIP = 0x1000
	c.Sched.AddThread(th)
	return c, th
}

func TestStepExecutesMovImmediate(t *testing.T) {
	// mov eax, 0x12345678
	c, th := newTestCoreWithCode(t, []byte{0xB8, 0x78, 0x56, 0x34, 0x12})
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if got := th.Regs.Get32(RAX); got != 0x12345678 {
		t.Fatalf("eax = 0x%x, want 0x12345678", got)
	}
	if th.Regs.RIP != 0x1005 {
		t.Fatalf("rip = 0x%x, want 0x1005", th.Regs.RIP)
	}
}

func TestStepAdvancesRIPAcrossTwoInstructions(t *testing.T) {
	// mov eax, 1 ; add eax, 41
	code := []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0x05, 0x29, 0x00, 0x00, 0x00}
	c, th := newTestCoreWithCode(t, code)

	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if got := th.Regs.Get32(RAX); got != 42 {
		t.Fatalf("eax = %d, want 42", got)
	}
}

func TestBreakpointFiresAndStopsFurtherExecution(t *testing.T) {
	// three mov eax, imm32 instructions back to back
	code := []byte{
		0xB8, 0x01, 0x00, 0x00, 0x00,
		0xB8, 0x02, 0x00, 0x00, 0x00,
		0xB8, 0x03, 0x00, 0x00, 0x00,
	}
	c, th := newTestCoreWithCode(t, code)

	bp := NewBreakpoints()
	bp.AddRIP(0x1005) // the second instruction's address
	c.AttachBreakpoints(bp)

	var hits int
	bp.Hit = func(reason string, addr uint64) {
		hits++
		c.Stop()
	}

	// step 1: executes at 0x1000, advances to 0x1005
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if hits != 0 {
		t.Fatalf("breakpoint must not fire before reaching its RIP, got %d hits", hits)
	}

	// step 2: stepOnce checks the breakpoint for the about-to-run
	// instruction at 0x1005, firing Hit and calling Stop, then still
	// executes this one instruction (stop takes effect at the next
	// Run/Step boundary, per spec.md's console-driven stop flag).
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 breakpoint hit, got %d", hits)
	}
	if got := th.Regs.Get32(RAX); got != 2 {
		t.Fatalf("eax = %d, want 2 (the instruction at the breakpoint still executes)", got)
	}

	// a subsequent Run must return immediately since Stop was requested.
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if th.Regs.RIP != 0x100a {
		t.Fatalf("rip = 0x%x, want 0x100a (Run must not execute the third instruction)", th.Regs.RIP)
	}
}

func TestSelfModifyingCodeInvalidatesDecodeCache(t *testing.T) {
	c := NewCore(config.Default())
	if _, err := c.Maps.Map("code", 0x1000, 0x1000, PermRWX); err != nil {
		t.Fatal(err)
	}
	c.Maps.Write(0x1000, []byte{0x90, 0x90}) // nop ; nop

	th := NewThread(0, false, false)
	th.Regs.RIP = 0x1000
	c.Sched.AddThread(th)

	// force a decode + cache fill at 0x1000
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if c.Cache.Lookup(0x1000) == nil {
		t.Fatal("expected the first NOP's decode to be cached")
	}

	// patch the second byte to ret (0xC3) and confirm the cache line
	// covering it gets dropped.
	c.Maps.WriteU8(0x1001, 0xC3)
	if d := c.Cache.Lookup(0x1001); d != nil {
		t.Fatal("expected the patched address's stale decode to be invalidated")
	}
}

package emu

import (
	"errors"
	"testing"
)

func newExceptionTestCore(t *testing.T) (*Core, *Thread) {
	t.Helper()
	c, th := newTestCoreWithCode(t, []byte{0x90})
	return c, th
}

// TestWriteContextUsesDedicatedScratchRegion covers the fix for
// exception()'s CONTEXT scratch address: it must land in a region the
// core itself allocated, not a hardcoded constant that happens to
// collide with (64-bit) or miss (32-bit) the default stack.
func TestWriteContextUsesDedicatedScratchRegion(t *testing.T) {
	c, th := newExceptionTestCore(t)
	th.Regs.Set64(RAX, 0x1111)
	th.Regs.RIP = 0x1234

	ctx := snapshotContext(th)
	c.writeContext(ctx)

	addr := c.contextScratchBase()
	if addr == 0 {
		t.Fatal("expected a non-zero scratch address")
	}
	r := c.Maps.GetByAddr(addr)
	if r == nil {
		t.Fatal("expected the scratch address to be backed by a mapped region")
	}
	if got := c.Maps.ReadU64(addr + 8); got != 0x1234 {
		t.Fatalf("RIP slot = 0x%x, want 0x1234", got)
	}
}

// TestExceptionWithNoHandlerReturnsError covers spec.md's contract that
// a guest fault with no VEH/UEH/SEH handler installed surfaces
// ErrNoHandler rather than panicking while writing the CONTEXT record.
func TestExceptionWithNoHandlerReturnsError(t *testing.T) {
	c, th := newExceptionTestCore(t)
	f := &Fault{Kind: ByteDereferencing, Addr: 0xBAD}

	err := c.exception(th, f)
	if err == nil {
		t.Fatal("expected an error with no handler installed")
	}
	var noHandler *ErrNoHandler
	if !errors.As(err, &noHandler) {
		t.Fatalf("expected *ErrNoHandler, got %T: %v", err, err)
	}
}

// TestExceptionWalksSEHChainAndDispatchesHandler covers spec.md §4.6's
// SEH-delivery scenario: a fault with a registered SEH handler must
// redirect RIP to the handler rather than returning ErrNoHandler, and
// must do so without panicking on the CONTEXT-record write.
func TestExceptionWalksSEHChainAndDispatchesHandler(t *testing.T) {
	c, th := newExceptionTestCore(t)

	if _, err := c.Maps.Map("seh", 0x3000, 0x100, PermRW); err != nil {
		t.Fatal(err)
	}
	const handlerAddr = 0x4000
	c.Maps.WriteU64(0x3000, 0xFFFFFFFFFFFFFFFF) // next: end of chain
	c.Maps.WriteU64(0x3008, handlerAddr)
	th.SEHHead = 0x3000

	f := &Fault{Kind: ByteDereferencing, Addr: 0xBAD}
	if err := c.exception(th, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Regs.RIP != handlerAddr {
		t.Fatalf("rip = 0x%x, want 0x%x (handler dispatch)", th.Regs.RIP, uint64(handlerAddr))
	}
}

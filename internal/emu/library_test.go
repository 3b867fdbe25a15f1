package emu

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/vireolabs/mwemu/internal/config"
)

type stubRegistryFunc func(addr uint64) (StubHook, bool)

func (f stubRegistryFunc) Resolve(addr uint64) (StubHook, bool) { return f(addr) }

// TestStubHookReturningTrueStopsRunLoop exercises the full path a
// process-exit-style stub (e.g. kernel32!ExitProcess) takes: an
// indirect call into the library zone dispatches to the registered
// hook, which returns true, which must stop Run at the next
// instruction boundary instead of letting the guest keep executing
// from the popped return address indefinitely.
func TestStubHookReturningTrueStopsRunLoop(t *testing.T) {
	c := NewCore(config.Default())
	if _, err := c.Maps.Map("stack", 0x2000, 0x1000, PermRW); err != nil {
		t.Fatal(err)
	}
	stubAddr, err := c.Maps.Lib64Alloc("kernel32.dll", 0x10)
	if err != nil {
		t.Fatal(err)
	}

	hookRan := false
	c.Stubs = stubRegistryFunc(func(addr uint64) (StubHook, bool) {
		if addr != stubAddr {
			return nil, false
		}
		return func(t *Thread, c *Core) bool {
			hookRan = true
			return true
		}, true
	})

	// mov rax, stubAddr ; call rax ; mov eax, 0xDEAD (must never run)
	var code []byte
	code = append(code, 0x48, 0xB8)
	var imm [8]byte
	binary.LittleEndian.PutUint64(imm[:], stubAddr)
	code = append(code, imm[:]...)
	code = append(code, 0xFF, 0xD0)
	code = append(code, 0xB8, 0xAD, 0xDE, 0x00, 0x00)

	if _, err := c.Maps.Map("code", 0x1000, 0x1000, PermRWX); err != nil {
		t.Fatal(err)
	}
	c.Maps.Write(0x1000, code)

	th := NewThread(0, false, false)
	th.Regs.RIP = 0x1000
	th.Regs.Set64(RSP, 0x2800)
	c.Sched.AddThread(th)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !hookRan {
		t.Fatal("expected the stub hook to run")
	}
	if got := th.Regs.Get32(RAX); got == 0xDEAD {
		t.Fatal("Run must stop before the instruction past the stub call executes")
	}
}

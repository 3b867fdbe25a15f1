package stubs

import (
	"testing"

	"github.com/vireolabs/mwemu/internal/config"
	"github.com/vireolabs/mwemu/internal/emu"
)

func TestArgUsesSysV64RegistersForLinuxThreads(t *testing.T) {
	th := emu.NewThread(0, false, true)
	th.Regs.Set64(emu.RDI, 10)
	th.Regs.Set64(emu.RSI, 20)
	th.Regs.Set64(emu.RDX, 30)
	th.Regs.Set64(emu.RCX, 40)
	th.Regs.Set64(emu.R8, 50)
	th.Regs.Set64(emu.R9, 60)

	for i, want := range []uint64{10, 20, 30, 40, 50, 60} {
		if got := Arg(th, nil, i); got != want {
			t.Fatalf("Arg(%d) = %d, want %d (SysV64 register order)", i, got, want)
		}
	}
}

func TestArgFallsBackToStackPastSixthSysV64Register(t *testing.T) {
	c := emu.NewCore(config.Default())
	if _, err := c.Maps.Map("stack", 0x2000, 0x1000, emu.PermRW); err != nil {
		t.Fatal(err)
	}
	th := emu.NewThread(0, false, true)
	th.Regs.Set64(emu.RSP, 0x2000)
	c.Maps.WriteU64(0x2000, 70) // 7th arg, no shadow space in SysV64

	if got := Arg(th, c, 6); got != 70 {
		t.Fatalf("Arg(6) = %d, want 70", got)
	}
}

func TestArgUsesWin64RegistersForNonLinuxThreads(t *testing.T) {
	th := emu.NewThread(0, false, false)
	th.Regs.Set64(emu.RCX, 1)
	th.Regs.Set64(emu.RDX, 2)

	if got := Arg(th, nil, 0); got != 1 {
		t.Fatalf("Arg(0) = %d, want 1 (Win64 RCX)", got)
	}
	if got := Arg(th, nil, 1); got != 2 {
		t.Fatalf("Arg(1) = %d, want 2 (Win64 RDX)", got)
	}
}

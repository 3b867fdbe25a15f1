package emu

import "testing"

func TestCheckStepFiresOnRIPAndInsnCount(t *testing.T) {
	bp := NewBreakpoints()
	bp.AddRIP(0x1000)
	bp.AddInsnCount(5)

	var hits []string
	bp.Hit = func(reason string, addr uint64) { hits = append(hits, reason) }

	if hit := bp.checkStep(0x1000, 1); !hit {
		t.Fatal("expected RIP breakpoint to fire")
	}
	if hit := bp.checkStep(0x2000, 5); !hit {
		t.Fatal("expected instruction-count breakpoint to fire")
	}
	if hit := bp.checkStep(0x2000, 6); hit {
		t.Fatal("expected no breakpoint to fire")
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 Hit callbacks, got %d (%v)", len(hits), hits)
	}
}

func TestRemoveRIPStopsFiring(t *testing.T) {
	bp := NewBreakpoints()
	bp.AddRIP(0x1000)
	bp.RemoveRIP(0x1000)
	if bp.checkStep(0x1000, 0) {
		t.Fatal("removed RIP breakpoint must not fire")
	}
}

func TestCheckReadAndWriteCoverByteRange(t *testing.T) {
	bp := NewBreakpoints()
	bp.AddRead(0x2003)
	bp.AddWrite(0x2007)

	var reads, writes int
	bp.Hit = func(reason string, addr uint64) {
		switch reason {
		case "mem-read":
			reads++
		case "mem-write":
			writes++
		}
	}

	bp.checkRead(0x2000, 8) // covers 0x2000..0x2007, includes 0x2003
	bp.checkWrite(0x2000, make([]byte, 8))

	if reads != 1 {
		t.Fatalf("expected 1 read hit, got %d", reads)
	}
	if writes != 1 {
		t.Fatalf("expected 1 write hit, got %d", writes)
	}
}

func TestAttachBreakpointsChainsExistingWriteHook(t *testing.T) {
	m := NewAddressSpace()
	m.Map("d", 0x3000, 0x100, PermRW)

	var prevFired bool
	m.SetWriteHook(func(addr uint64, data []byte) { prevFired = true })

	core := &Core{Maps: m}
	bp := NewBreakpoints()
	bp.AddWrite(0x3000)
	var bpFired bool
	bp.Hit = func(reason string, addr uint64) { bpFired = true }

	core.AttachBreakpoints(bp)
	m.WriteU8(0x3000, 1)

	if !prevFired {
		t.Fatal("AttachBreakpoints must not clobber a previously installed write hook")
	}
	if !bpFired {
		t.Fatal("expected the breakpoint's write watch to fire")
	}
}

package emu

import "testing"

func TestSetAddCarryAndOverflow(t *testing.T) {
	var f Flags
	// 0x7F + 0x01 at 8 bits: signed overflow (127 + 1 -> -128), no carry.
	result := f.SetAdd(0x7F, 0x01, false, W8)
	if result != 0x80 {
		t.Fatalf("result = 0x%x, want 0x80", result)
	}
	if !f.OF {
		t.Fatal("expected OF set on signed overflow")
	}
	if f.CF {
		t.Fatal("expected CF clear, no unsigned carry")
	}
	if !f.SF {
		t.Fatal("expected SF set, result is negative at width 8")
	}
}

func TestSetAddUnsignedCarry(t *testing.T) {
	var f Flags
	result := f.SetAdd(0xFF, 0x01, false, W8)
	if result != 0 {
		t.Fatalf("result = 0x%x, want 0", result)
	}
	if !f.CF {
		t.Fatal("expected CF set on unsigned wraparound")
	}
	if !f.ZF {
		t.Fatal("expected ZF set, result is zero")
	}
	if f.OF {
		t.Fatal("expected OF clear, 0xFF + 1 has no signed overflow")
	}
}

func TestSetSubBorrow(t *testing.T) {
	var f Flags
	result := f.SetSub(0x00, 0x01, false, W8)
	if result != 0xFF {
		t.Fatalf("result = 0x%x, want 0xFF", result)
	}
	if !f.CF {
		t.Fatal("expected CF set, borrow occurred")
	}
	if !f.SF {
		t.Fatal("expected SF set")
	}
}

func TestSetLogicClearsCarryAndOverflow(t *testing.T) {
	var f Flags
	f.CF, f.OF = true, true
	result := f.SetLogic(0xF0, W8)
	if result != 0xF0 {
		t.Fatalf("result = 0x%x, want 0xf0", result)
	}
	if f.CF || f.OF {
		t.Fatal("SetLogic must clear CF and OF")
	}
	if !f.PF {
		t.Fatal("0xF0 has even parity, expected PF set")
	}
}

func TestFlagsDumpLoadRoundTrip(t *testing.T) {
	f := Flags{CF: true, ZF: true, SF: true, OF: true, DF: true, PF: true, AF: true}
	packed := f.Dump()

	var g Flags
	g.Load(packed)
	if g != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", g, f)
	}
}

func TestDumpReservedBitAlwaysSet(t *testing.T) {
	var f Flags
	if f.Dump()&(1<<1) == 0 {
		t.Fatal("bit 1 of EFLAGS must always read 1")
	}
}

func TestDiffReportsOnlyChangedFlags(t *testing.T) {
	pre := Flags{ZF: false, CF: true}
	post := Flags{ZF: true, CF: true}
	d := Diff(pre, post)
	if d != "ZF:false->true " {
		t.Fatalf("Diff = %q, want %q", d, "ZF:false->true ")
	}
}

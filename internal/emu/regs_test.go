package emu

import "testing"

func TestSet32ZeroesUpperBits(t *testing.T) {
	var r Regs
	r.Set64(RAX, 0xFFFFFFFFFFFFFFFF)
	r.Set32(RAX, 0x12345678)
	if got := r.Get64(RAX); got != 0x12345678 {
		t.Fatalf("Set32 must zero-extend into the 64-bit register, got 0x%x", got)
	}
}

func TestSet16PreservesUpperBits(t *testing.T) {
	var r Regs
	r.Set64(RAX, 0xAAAAAAAAAAAAAAAA)
	r.Set16(RAX, 0x1234)
	if got := r.Get64(RAX); got != 0xAAAAAAAAAAAA1234 {
		t.Fatalf("Set16 must preserve bits [63:16], got 0x%x", got)
	}
}

func TestSet8LowPreservesUpperBits(t *testing.T) {
	var r Regs
	r.Set64(RAX, 0x1122334455667788)
	r.Set8Low(RAX, 0xFF)
	if got := r.Get64(RAX); got != 0x11223344556677FF {
		t.Fatalf("Set8Low must preserve bits [63:8], got 0x%x", got)
	}
}

func TestSet8HighAffectsOnlySecondByte(t *testing.T) {
	var r Regs
	r.Set64(RAX, 0x1122334455667788)
	r.Set8High(RAX, 0xFF)
	if got := r.Get64(RAX); got != 0x112233445566FF88 {
		t.Fatalf("Set8High must only touch bits [15:8], got 0x%x", got)
	}
	if got := r.Get8High(RAX); got != 0xFF {
		t.Fatalf("Get8High = 0x%x, want 0xff", got)
	}
}

func TestXMMZeroUpperClearsYMMLane(t *testing.T) {
	var r Regs
	r.SetYMM(0, U256{Lo: U128{Lo: 1, Hi: 2}, Hi: U128{Lo: 3, Hi: 4}})
	r.SetXMMZeroUpper(0, U128{Lo: 9, Hi: 9})

	got := r.GetYMM(0)
	want := U256{Lo: U128{Lo: 9, Hi: 9}, Hi: U128{}}
	if got != want {
		t.Fatalf("GetYMM(0) = %+v, want %+v", got, want)
	}
}

func TestYMMAliasesXMMLowerHalf(t *testing.T) {
	var r Regs
	r.SetXMM(3, U128{Lo: 0xDEAD, Hi: 0xBEEF})
	ymm := r.GetYMM(3)
	if ymm.Lo != (U128{Lo: 0xDEAD, Hi: 0xBEEF}) {
		t.Fatalf("YMM lower half must alias XMM, got %+v", ymm.Lo)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := &Regs{}
	r.Set64(RAX, 0x1)
	c := r.Clone()
	c.Set64(RAX, 0x2)
	if r.Get64(RAX) != 0x1 {
		t.Fatal("mutating the clone must not affect the original")
	}
}

func TestRegStringNamesLowercase(t *testing.T) {
	if RAX.String() != "rax" || R15.String() != "r15" {
		t.Fatalf("unexpected register names: %q %q", RAX.String(), R15.String())
	}
}

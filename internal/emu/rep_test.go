package emu

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestRepKindOfMovementOps(t *testing.T) {
	for _, op := range []x86asm.Op{x86asm.MOVSB, x86asm.STOSB, x86asm.LODSB} {
		if k := repKindOf(op, false); k != RepMovement {
			t.Fatalf("%v: repKindOf = %v, want RepMovement", op, k)
		}
	}
}

func TestRepKindOfCompareOpsRespectsPrefix(t *testing.T) {
	if k := repKindOf(x86asm.CMPSB, false); k != RepE {
		t.Fatalf("REPE CMPSB: repKindOf = %v, want RepE", k)
	}
	if k := repKindOf(x86asm.SCASB, true); k != RepNE {
		t.Fatalf("REPNE SCASB: repKindOf = %v, want RepNE", k)
	}
}

func TestHasREPNEDetectsPrefix(t *testing.T) {
	inst := &x86asm.Inst{Prefix: x86asm.Prefixes{x86asm.PrefixREPN}}
	if !hasREPNE(inst) {
		t.Fatal("expected PrefixREPN to be detected")
	}

	inst2 := &x86asm.Inst{Prefix: x86asm.Prefixes{x86asm.PrefixREP}}
	if hasREPNE(inst2) {
		t.Fatal("PrefixREP must not be classified as REPNE")
	}
}

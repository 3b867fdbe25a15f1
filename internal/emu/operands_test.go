package emu

import "testing"

// TestLeaRipRelativeAddsNextInstructionAddress covers the fix for
// RIP-relative effective addresses: the decoder does not fold the
// next-instruction address into Mem.Disp, so EffectiveAddress must add
// the instruction's own length to RIP before applying the displacement.
func TestLeaRipRelativeAddsNextInstructionAddress(t *testing.T) {
	// lea rax, [rip+0x10]   (48 8d 05 10 00 00 00), 7 bytes
	code := []byte{0x48, 0x8D, 0x05, 0x10, 0x00, 0x00, 0x00}
	c, th := newTestCoreWithCode(t, code)

	if err := c.Step(); err != nil {
		t.Fatal(err)
	}

	want := uint64(0x1000) + uint64(len(code)) + 0x10
	if got := th.Regs.Get64(RAX); got != want {
		t.Fatalf("rax = 0x%x, want 0x%x (next-insn address + disp)", got, want)
	}
}

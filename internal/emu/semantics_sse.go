package emu

import "golang.org/x/arch/x86/x86asm"

func xmmIndexOf(r x86asm.Reg) (int, bool) {
	if r >= x86asm.X0 && r <= x86asm.X15 {
		return int(r - x86asm.X0), true
	}
	return 0, false
}

// getXmmOperand/setXmmOperand bypass GetOperandValue/SetOperandValue
// (which fault on XMM registers, since the GPR path has no 128-bit
// return type) with the SSE-specific 128-bit primitives spec.md §3
// describes for the XMM/YMM register file.
func (c *Core) getXmmOperand(t *Thread, inst *x86asm.Inst, idx int) (U128, error) {
	switch a := inst.Args[idx].(type) {
	case x86asm.Reg:
		if i, ok := xmmIndexOf(a); ok {
			return t.Regs.GetXMM(i), nil
		}
		return U128{}, &Fault{Kind: BadAddressDereferencing}
	case x86asm.Mem:
		ea, _, _, err := c.EffectiveAddress(t, a, inst.Mode, inst.Len)
		if err != nil {
			return U128{}, err
		}
		return c.Maps.ReadU128(ea), nil
	}
	return U128{}, &Fault{Kind: BadAddressDereferencing}
}

func (c *Core) setXmmOperand(t *Thread, inst *x86asm.Inst, idx int, v U128) error {
	switch a := inst.Args[idx].(type) {
	case x86asm.Reg:
		if i, ok := xmmIndexOf(a); ok {
			t.Regs.SetXMMZeroUpper(i, v)
			return nil
		}
		return &Fault{Kind: BadAddressDereferencing}
	case x86asm.Mem:
		ea, _, _, err := c.EffectiveAddress(t, a, inst.Mode, inst.Len)
		if err != nil {
			return err
		}
		c.Maps.WriteU128(ea, v)
		return nil
	}
	return &Fault{Kind: BadAddressDereferencing}
}

// opMovXmm implements MOVUPS/MOVAPS/MOVDQU/MOVDQA/VMOVDQU: an
// unaligned 128-bit move between XMM registers and/or memory. This
// core does not enforce the 16-byte alignment that the "A"-suffixed
// forms require on real hardware.
func (c *Core) opMovXmm(t *Thread, inst *x86asm.Inst) error {
	v, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	return c.setXmmOperand(t, inst, 0, v)
}

func toBytes(v U128) [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v.Lo >> uint(i*8))
		b[8+i] = byte(v.Hi >> uint(i*8))
	}
	return b
}

func fromBytes(b [16]byte) U128 {
	var v U128
	for i := 0; i < 8; i++ {
		v.Lo |= uint64(b[i]) << uint(i*8)
		v.Hi |= uint64(b[8+i]) << uint(i*8)
	}
	return v
}

// opPLogic implements PAND/POR/PXOR/PANDN: a whole-register 128-bit
// bitwise op, no lane width involved.
func (c *Core) opPLogic(t *Thread, inst *x86asm.Inst, fn func(a, b U128) U128) error {
	a, err := c.getXmmOperand(t, inst, 0)
	if err != nil {
		return err
	}
	b, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	return c.setXmmOperand(t, inst, 0, fn(a, b))
}

func laneSize(op x86asm.Op) int {
	switch op {
	case x86asm.PADDB, x86asm.PSUBB, x86asm.PCMPEQB, x86asm.PCMPGTB:
		return 1
	case x86asm.PADDW, x86asm.PCMPEQW:
		return 2
	default: // PADDD, PCMPEQD
		return 4
	}
}

// opPAdd implements PADDB/PADDW/PADDD: lane-wise wraparound addition
// across the 16-byte register, lane width selected by the mnemonic.
func (c *Core) opPAdd(t *Thread, inst *x86asm.Inst) error {
	a, err := c.getXmmOperand(t, inst, 0)
	if err != nil {
		return err
	}
	b, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	ab, bb := toBytes(a), toBytes(b)
	var rb [16]byte
	lane := laneSize(inst.Op)
	for off := 0; off < 16; off += lane {
		var av, bv uint32
		for i := 0; i < lane; i++ {
			av |= uint32(ab[off+i]) << uint(i*8)
			bv |= uint32(bb[off+i]) << uint(i*8)
		}
		sum := av + bv
		for i := 0; i < lane; i++ {
			rb[off+i] = byte(sum >> uint(i*8))
		}
	}
	return c.setXmmOperand(t, inst, 0, fromBytes(rb))
}

// opPSubB implements PSUBB: byte-lane wraparound subtraction.
func (c *Core) opPSubB(t *Thread, inst *x86asm.Inst) error {
	a, err := c.getXmmOperand(t, inst, 0)
	if err != nil {
		return err
	}
	b, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	ab, bb := toBytes(a), toBytes(b)
	var rb [16]byte
	for i := 0; i < 16; i++ {
		rb[i] = ab[i] - bb[i]
	}
	return c.setXmmOperand(t, inst, 0, fromBytes(rb))
}

// opPCmpEq implements PCMPEQB/W/D: each lane becomes all-1s if equal,
// all-0s otherwise.
func (c *Core) opPCmpEq(t *Thread, inst *x86asm.Inst) error {
	a, err := c.getXmmOperand(t, inst, 0)
	if err != nil {
		return err
	}
	b, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	ab, bb := toBytes(a), toBytes(b)
	var rb [16]byte
	lane := laneSize(inst.Op)
	for off := 0; off < 16; off += lane {
		eq := true
		for i := 0; i < lane; i++ {
			if ab[off+i] != bb[off+i] {
				eq = false
				break
			}
		}
		if eq {
			for i := 0; i < lane; i++ {
				rb[off+i] = 0xFF
			}
		}
	}
	return c.setXmmOperand(t, inst, 0, fromBytes(rb))
}

// opPCmpGtB implements PCMPGTB: signed per-byte greater-than, each
// lane set to all-1s when true.
func (c *Core) opPCmpGtB(t *Thread, inst *x86asm.Inst) error {
	a, err := c.getXmmOperand(t, inst, 0)
	if err != nil {
		return err
	}
	b, err := c.getXmmOperand(t, inst, 1)
	if err != nil {
		return err
	}
	ab, bb := toBytes(a), toBytes(b)
	var rb [16]byte
	for i := 0; i < 16; i++ {
		if int8(ab[i]) > int8(bb[i]) {
			rb[i] = 0xFF
		}
	}
	return c.setXmmOperand(t, inst, 0, fromBytes(rb))
}

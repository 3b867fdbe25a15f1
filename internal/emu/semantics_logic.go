package emu

import "golang.org/x/arch/x86/x86asm"

func (c *Core) opLogic(t *Thread, inst *x86asm.Inst, fn func(a, b uint64) uint64, store bool) error {
	a, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	b, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	result := t.Flags.SetLogic(fn(a, b), w)
	if !store {
		return nil
	}
	return c.SetOperandValue(t, inst, 0, result)
}

func (c *Core) opNot(t *Thread, inst *x86asm.Inst) error {
	a, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	return c.SetOperandValue(t, inst, 0, (^a)&mask(w))
}

// shiftDir names the three shift families opShift handles.
type shiftDir int

const (
	shiftLeft shiftDir = iota
	shiftRight
	shiftArith
)

// opShift implements SHL/SHR/SAR. The shift count is always Args[1]
// (imm8, CL, or an implicit 1 the decoder represents as Imm(1)); CF
// takes the last bit shifted out, OF is defined only for single-bit
// shifts per Intel semantics and left unchanged otherwise.
func (c *Core) opShift(t *Thread, inst *x86asm.Inst, dir shiftDir) error {
	a, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	cnt, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	n := cnt & 0x3F
	if n == 0 {
		return nil // flags unaffected when the masked count is zero
	}
	m := mask(w)
	a &= m
	var result uint64
	var lastOut bool

	switch dir {
	case shiftLeft:
		if n <= uint64(w) {
			lastOut = (a>>(uint(w)-uint(n)))&1 != 0
		}
		result = (a << n) & m
	case shiftRight:
		if n <= 64 {
			lastOut = n >= 1 && (a>>(n-1))&1 != 0
		}
		result = a >> n
		if n >= uint64(w) {
			result = 0
			lastOut = n == uint64(w) && (a>>(uint64(w)-1))&1 != 0
		}
	case shiftArith:
		signed := int64(signExtend(a, w))
		lastOut = n >= 1 && n <= 64 && (a>>(minU64(n, uint64(w))-1))&1 != 0
		if n >= uint64(w) {
			if signed < 0 {
				result = m
			} else {
				result = 0
			}
		} else {
			result = uint64(signed>>n) & m
		}
	}

	t.Flags.CF = lastOut
	t.Flags.ZF = result == 0
	t.Flags.SF = signBit(result, w)
	t.Flags.PF = parity(result)
	if n == 1 {
		switch dir {
		case shiftLeft:
			t.Flags.OF = signBit(result, w) != t.Flags.CF
		case shiftRight:
			t.Flags.OF = signBit(a, w)
		case shiftArith:
			t.Flags.OF = false
		}
	}
	return c.SetOperandValue(t, inst, 0, result)
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// opRotate implements ROL/ROR (throughCarry=false) and RCL/RCR (throughCarry=true,
// CF participates as an extra bit in the rotation).
func (c *Core) opRotate(t *Thread, inst *x86asm.Inst, left, throughCarry bool) error {
	a, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	cnt, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	bits := uint64(w)
	if throughCarry {
		bits++
	}
	n := cnt
	if throughCarry {
		n %= bits
	} else {
		n %= bits
	}
	if n == 0 && !throughCarry {
		return nil
	}

	m := mask(w)
	a &= m
	var result uint64
	var cfOut bool

	if throughCarry {
		// Treat value as w+1 bits with CF as the extra high bit, rotate,
		// then split back out.
		ext := a
		if t.Flags.CF {
			ext |= uint64(1) << uint(w)
		}
		total := uint(w) + 1
		for i := uint64(0); i < n; i++ {
			if left {
				top := (ext >> (total - 1)) & 1
				ext = ((ext << 1) | top) & ((uint64(1) << total) - 1)
			} else {
				bot := ext & 1
				ext = (ext >> 1) | (bot << (total - 1))
			}
		}
		cfOut = ext&(uint64(1)<<uint(w)) != 0
		result = ext & m
	} else {
		for i := uint64(0); i < n; i++ {
			if left {
				top := (a >> (uint(w) - 1)) & 1
				a = ((a << 1) | top) & m
			} else {
				bot := a & 1
				a = (a >> 1) | (bot << (uint(w) - 1))
			}
		}
		result = a
		if left {
			cfOut = result&1 != 0
		} else {
			cfOut = signBit(result, w)
		}
	}

	t.Flags.CF = cfOut
	if n == 1 {
		if left {
			t.Flags.OF = signBit(result, w) != cfOut
		} else {
			msb := signBit(result, w)
			msb2 := (result>>(uint(w)-2))&1 != 0
			t.Flags.OF = msb != msb2
		}
	}
	return c.SetOperandValue(t, inst, 0, result)
}

// opShld/opShrd implement the double-precision shifts used by
// software memcpy/bignum routines: dst is shifted in the given
// direction, with bits fed in from src on the vacated side.
func (c *Core) opShld(t *Thread, inst *x86asm.Inst) error {
	return c.doubleShift(t, inst, true)
}

func (c *Core) opShrd(t *Thread, inst *x86asm.Inst) error {
	return c.doubleShift(t, inst, false)
}

func (c *Core) doubleShift(t *Thread, inst *x86asm.Inst, left bool) error {
	dst, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	src, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	cnt, err := c.GetOperandValue(t, inst, 2, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	n := cnt & 0x1F
	if w == W64 {
		n = cnt & 0x3F
	}
	if n == 0 {
		return nil
	}
	m := mask(w)
	dst &= m
	src &= m

	var result uint64
	var cfOut bool
	if left && w == W64 {
		result = dst<<n | src>>(64-n)
		cfOut = (dst>>(64-n))&1 != 0
	} else if left {
		combined := (dst << uint(w)) | src
		combined <<= n - 1
		cfOut = (combined>>(2*uint(w)-1))&1 != 0
		combined <<= 1
		result = (combined >> uint(w)) & m
	} else if w == W64 {
		result = dst>>n | src<<(64-n)
		cfOut = (dst>>(n-1))&1 != 0
	} else {
		combined := (src << uint(w)) | dst
		combined >>= n - 1
		cfOut = combined&1 != 0
		combined >>= 1
		result = combined & m
	}

	t.Flags.CF = cfOut
	t.Flags.ZF = result == 0
	t.Flags.SF = signBit(result, w)
	t.Flags.PF = parity(result)
	if n == 1 {
		t.Flags.OF = signBit(result, w) != signBit(dst, w)
	}
	return c.SetOperandValue(t, inst, 0, result)
}

// btKind selects which of BT/BTC/BTR/BTS opBitTest performs after
// extracting the tested bit into CF.
type btKind int

const (
	btNone btKind = iota
	btComplement
	btReset
	btSet
)

func (c *Core) opBitTest(t *Thread, inst *x86asm.Inst, kind btKind) error {
	base, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	idx, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 0))
	bit := idx % uint64(w)
	t.Flags.CF = (base>>bit)&1 != 0

	switch kind {
	case btNone:
		return nil
	case btComplement:
		base ^= uint64(1) << bit
	case btReset:
		base &^= uint64(1) << bit
	case btSet:
		base |= uint64(1) << bit
	}
	return c.SetOperandValue(t, inst, 0, base)
}

func (c *Core) opBsf(t *Thread, inst *x86asm.Inst) error {
	a, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 1))
	a &= mask(w)
	if a == 0 {
		t.Flags.ZF = true
		return nil
	}
	t.Flags.ZF = false
	idx := uint64(0)
	for (a>>idx)&1 == 0 {
		idx++
	}
	return c.SetOperandValue(t, inst, 0, idx)
}

func (c *Core) opBsr(t *Thread, inst *x86asm.Inst) error {
	a, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := widthOf(argWidth(inst, 1))
	a &= mask(w)
	if a == 0 {
		t.Flags.ZF = true
		return nil
	}
	t.Flags.ZF = false
	idx := uint64(w) - 1
	for (a>>idx)&1 == 0 {
		idx--
	}
	return c.SetOperandValue(t, inst, 0, idx)
}

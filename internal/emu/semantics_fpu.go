package emu

import (
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// stIndexOf maps the decoder's F0..F7 register space to an ST(i) index.
func stIndexOf(r x86asm.Reg) (int, bool) {
	if r >= x86asm.F0 && r <= x86asm.F7 {
		return int(r - x86asm.F0), true
	}
	return 0, false
}

// fpOperand reads a floating-point value from either an ST(i) register
// or a memory operand (float32/float64 widened to float64; this core
// does not model the 80-bit extended format's extra exponent range).
func (c *Core) fpOperand(t *Thread, inst *x86asm.Inst, idx int) (float64, error) {
	switch a := inst.Args[idx].(type) {
	case x86asm.Reg:
		if i, ok := stIndexOf(a); ok {
			return t.FPU.St(i), nil
		}
		return 0, &Fault{Kind: BadAddressDereferencing}
	case x86asm.Mem:
		ea, _, _, err := c.EffectiveAddress(t, a, inst.Mode, inst.Len)
		if err != nil {
			return 0, err
		}
		if memBytesOrDefault(inst) == 4 {
			bits, rerr := c.readMem(t, ea, Width32)
			if rerr != nil {
				return 0, rerr
			}
			return float64(math.Float32frombits(uint32(bits))), nil
		}
		bits, rerr := c.readMem(t, ea, Width64)
		if rerr != nil {
			return 0, rerr
		}
		return math.Float64frombits(bits), nil
	}
	return 0, &Fault{Kind: BadAddressDereferencing}
}

// opFld pushes a value from memory (m32/m64) or an ST(i) register onto
// the FPU stack.
func (c *Core) opFld(t *Thread, inst *x86asm.Inst) error {
	v, err := c.fpOperand(t, inst, 0)
	if err != nil {
		return err
	}
	t.FPU.Push(v)
	return nil
}

// opFst stores ST(0) into a memory operand or ST(i), popping when pop
// is true (FSTP).
func (c *Core) opFst(t *Thread, inst *x86asm.Inst, pop bool) error {
	v := t.FPU.St(0)
	switch a := inst.Args[0].(type) {
	case x86asm.Reg:
		if i, ok := stIndexOf(a); ok {
			t.FPU.SetSt(i, v)
		}
	case x86asm.Mem:
		ea, _, _, err := c.EffectiveAddress(t, a, inst.Mode, inst.Len)
		if err != nil {
			return err
		}
		if memBytesOrDefault(inst) == 4 {
			if werr := c.writeMem(t, ea, uint64(math.Float32bits(float32(v))), Width32); werr != nil {
				return werr
			}
		} else {
			if werr := c.writeMem(t, ea, math.Float64bits(v), Width64); werr != nil {
				return werr
			}
		}
	}
	if pop {
		t.FPU.Pop()
	}
	return nil
}

// opFArith implements FADD/FSUB/FMUL/FDIV and their P (pop) forms. The
// single-operand memory form is ST(0) op= m32/m64; the one- and
// two-operand register forms follow the usual "last operand named is
// the implicit ST(0) side" convention.
func (c *Core) opFArith(t *Thread, inst *x86asm.Inst, fn func(a, b float64) float64, pop bool) error {
	args := argsOf(inst)
	if len(args) == 1 {
		src, err := c.fpOperand(t, inst, 0)
		if err != nil {
			return err
		}
		t.FPU.SetSt(0, fn(t.FPU.St(0), src))
		if pop {
			t.FPU.Pop()
		}
		return nil
	}

	dstReg, dstIsReg := args[0].(x86asm.Reg)
	if dstIsReg {
		if i, ok := stIndexOf(dstReg); ok && i != 0 {
			// FADD ST(i), ST(0): dst is ST(i)
			src := t.FPU.St(0)
			t.FPU.SetSt(i, fn(t.FPU.St(i), src))
			if pop {
				t.FPU.Pop()
			}
			return nil
		}
	}
	src, err := c.fpOperand(t, inst, 1)
	if err != nil {
		return err
	}
	t.FPU.SetSt(0, fn(t.FPU.St(0), src))
	if pop {
		t.FPU.Pop()
	}
	return nil
}

// fxsaveStride spaces the register slots of this core's abridged,
// self-consistent FXSAVE image: control word, status word, tag byte,
// top, and the 8 physical register slots as raw float64 bits. It round-trips correctly under FXSAVE64/FXRSTOR64
// (spec.md §8) without claiming byte-for-byte compatibility with the
// full 512-byte architectural image (XMM state is not included here;
// SSE state has no separate save area in this subset).
const fxsaveStride = 8

func (c *Core) opFxsave(t *Thread, inst *x86asm.Inst) error {
	m, ok := inst.Args[0].(x86asm.Mem)
	if !ok {
		return &Fault{Kind: BadAddressDereferencing}
	}
	addr, _, _, err := c.EffectiveAddress(t, m, inst.Mode, inst.Len)
	if err != nil {
		return err
	}
	img := t.FPU.Save()
	c.Maps.WriteU16(addr+0, img.ControlWord)
	c.Maps.WriteU16(addr+2, img.StatusWord)
	c.Maps.WriteU8(addr+4, img.TagByte)
	c.Maps.WriteU8(addr+5, uint8(img.Top))
	for i := 0; i < 8; i++ {
		c.Maps.WriteU64(addr+16+uint64(i*fxsaveStride), math.Float64bits(img.ST[i]))
	}
	return nil
}

func (c *Core) opFxrstor(t *Thread, inst *x86asm.Inst) error {
	m, ok := inst.Args[0].(x86asm.Mem)
	if !ok {
		return &Fault{Kind: BadAddressDereferencing}
	}
	addr, _, _, err := c.EffectiveAddress(t, m, inst.Mode, inst.Len)
	if err != nil {
		return err
	}
	var img FxsaveImage
	img.ControlWord = c.Maps.ReadU16(addr + 0)
	img.StatusWord = c.Maps.ReadU16(addr + 2)
	img.TagByte = c.Maps.ReadU8(addr + 4)
	img.Top = int(c.Maps.ReadU8(addr + 5))
	for i := 0; i < 8; i++ {
		img.ST[i] = math.Float64frombits(c.Maps.ReadU64(addr + 16 + uint64(i*fxsaveStride)))
	}
	t.FPU.Restore(img)
	return nil
}

package emu

import "golang.org/x/arch/x86/x86asm"

// argWidth infers the operand width of Args[idx], used by semantics
// that need to know how many bits of a register or memory cell to
// touch (spec.md §9's single translation table, applied at the call
// site rather than scattered per instruction).
func argWidth(inst *x86asm.Inst, idx int) OperandWidth {
	switch a := inst.Args[idx].(type) {
	case x86asm.Reg:
		return widthOfReg(a)
	case x86asm.Mem:
		return widthOfMemBytes(memBytesOrDefault(inst))
	default:
		return widthOfMemBytes(inst.DataSize / 8)
	}
}

func (c *Core) opMov(t *Thread, inst *x86asm.Inst) error {
	v, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	return c.SetOperandValue(t, inst, 0, v)
}

func (c *Core) opMovzx(t *Thread, inst *x86asm.Inst) error {
	v, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := argWidth(inst, 1)
	return c.SetOperandValue(t, inst, 0, v&mask(w))
}

func (c *Core) opMovsx(t *Thread, inst *x86asm.Inst) error {
	v, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	w := argWidth(inst, 1)
	v = signExtend(v, w)
	return c.SetOperandValue(t, inst, 0, v)
}

func signExtend(v uint64, from Width) uint64 {
	switch from {
	case W8:
		return uint64(int64(int8(v)))
	case W16:
		return uint64(int64(int16(v)))
	case W32:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

func (c *Core) opLea(t *Thread, inst *x86asm.Inst) error {
	addr, err := c.GetOperandValue(t, inst, 1, false)
	if err != nil {
		return err
	}
	return c.SetOperandValue(t, inst, 0, addr)
}

func (c *Core) opXchg(t *Thread, inst *x86asm.Inst) error {
	a, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	b, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	if err := c.SetOperandValue(t, inst, 0, b); err != nil {
		return err
	}
	return c.SetOperandValue(t, inst, 1, a)
}

func (c *Core) pointerWidth(t *Thread) (Width, uint64) {
	if t.Is32Bit {
		return W32, 4
	}
	return W64, 8
}

func (c *Core) opPush(t *Thread, inst *x86asm.Inst) error {
	v, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	_, sz := c.pointerWidth(t)
	sp := t.Regs.Get64(RSP) - sz
	t.Regs.Set64(RSP, sp)
	if sz == 4 {
		c.Maps.WriteU32(sp, uint32(v))
	} else {
		c.Maps.WriteU64(sp, v)
	}
	return nil
}

func (c *Core) opPop(t *Thread, inst *x86asm.Inst) error {
	_, sz := c.pointerWidth(t)
	sp := t.Regs.Get64(RSP)
	var v uint64
	if sz == 4 {
		v = uint64(c.Maps.ReadU32(sp))
	} else {
		v = c.Maps.ReadU64(sp)
	}
	t.Regs.Set64(RSP, sp+sz)
	return c.SetOperandValue(t, inst, 0, v)
}

package emu

import "golang.org/x/arch/x86/x86asm"

// stringWidth maps a string-instruction mnemonic suffix (B/W/D/Q) to
// its operand width; x86asm decodes these as implicit-operand opcodes
// with no Args, so width is read off the mnemonic itself.
func stringWidth(op x86asm.Op) OperandWidth {
	switch op {
	case x86asm.MOVSB, x86asm.STOSB, x86asm.LODSB, x86asm.CMPSB, x86asm.SCASB:
		return Width8
	case x86asm.MOVSW, x86asm.STOSW, x86asm.LODSW, x86asm.CMPSW, x86asm.SCASW:
		return Width16
	case x86asm.MOVSD, x86asm.STOSD, x86asm.LODSD, x86asm.CMPSD, x86asm.SCASD:
		return Width32
	default: // MOVSQ, STOSQ, LODSQ, CMPSQ, SCASQ
		return Width64
	}
}

func (c *Core) stringStep(t *Thread, w OperandWidth) uint64 {
	n := uint64(w.Bits() / 8)
	if t.Flags.DF {
		return ^n + 1 // -n
	}
	return n
}

func addrReg(t *Thread, r Reg) uint64 {
	if t.Is32Bit {
		return uint64(t.Regs.Get32(r))
	}
	return t.Regs.Get64(r)
}

func setAddrReg(t *Thread, r Reg, v uint64) {
	if t.Is32Bit {
		t.Regs.Set32(r, uint32(v))
	} else {
		t.Regs.Set64(r, v)
	}
}

// opMovs copies one element [RSI] -> [RDI] and advances both index
// registers by the element width, negated when DF is set.
func (c *Core) opMovs(t *Thread, inst *x86asm.Inst) error {
	w := stringWidth(inst.Op)
	v, err := c.readMem(t, addrReg(t, RSI), w)
	if err != nil {
		return err
	}
	if err := c.writeMem(t, addrReg(t, RDI), v, w); err != nil {
		return err
	}
	step := c.stringStep(t, w)
	setAddrReg(t, RSI, addrReg(t, RSI)+step)
	setAddrReg(t, RDI, addrReg(t, RDI)+step)
	return nil
}

// opStos writes AL/AX/EAX/RAX to [RDI] and advances RDI.
func (c *Core) opStos(t *Thread, inst *x86asm.Inst) error {
	w := stringWidth(inst.Op)
	v := c.readAccumulator(t, w)
	if err := c.writeMem(t, addrReg(t, RDI), v, w); err != nil {
		return err
	}
	setAddrReg(t, RDI, addrReg(t, RDI)+c.stringStep(t, w))
	return nil
}

// opLods loads [RSI] into AL/AX/EAX/RAX and advances RSI.
func (c *Core) opLods(t *Thread, inst *x86asm.Inst) error {
	w := stringWidth(inst.Op)
	v, err := c.readMem(t, addrReg(t, RSI), w)
	if err != nil {
		return err
	}
	c.writeAccumulator(t, w, v)
	setAddrReg(t, RSI, addrReg(t, RSI)+c.stringStep(t, w))
	return nil
}

// opCmps compares [RSI] against [RDI] (sets flags like CMP) and
// advances both index registers.
func (c *Core) opCmps(t *Thread, inst *x86asm.Inst) error {
	w := stringWidth(inst.Op)
	a, err := c.readMem(t, addrReg(t, RSI), w)
	if err != nil {
		return err
	}
	b, err := c.readMem(t, addrReg(t, RDI), w)
	if err != nil {
		return err
	}
	t.Flags.SetSub(a, b, false, widthOf(w))
	step := c.stringStep(t, w)
	setAddrReg(t, RSI, addrReg(t, RSI)+step)
	setAddrReg(t, RDI, addrReg(t, RDI)+step)
	return nil
}

// opScas compares AL/AX/EAX/RAX against [RDI] and advances RDI.
func (c *Core) opScas(t *Thread, inst *x86asm.Inst) error {
	w := stringWidth(inst.Op)
	a := c.readAccumulator(t, w)
	b, err := c.readMem(t, addrReg(t, RDI), w)
	if err != nil {
		return err
	}
	t.Flags.SetSub(a, b, false, widthOf(w))
	setAddrReg(t, RDI, addrReg(t, RDI)+c.stringStep(t, w))
	return nil
}

func (c *Core) readAccumulator(t *Thread, w OperandWidth) uint64 {
	switch w {
	case Width8:
		return uint64(t.Regs.Get8Low(RAX))
	case Width16:
		return uint64(t.Regs.Get16(RAX))
	case Width32:
		return uint64(t.Regs.Get32(RAX))
	default:
		return t.Regs.Get64(RAX)
	}
}

func (c *Core) writeAccumulator(t *Thread, w OperandWidth, v uint64) {
	switch w {
	case Width8:
		t.Regs.Set8Low(RAX, uint8(v))
	case Width16:
		t.Regs.Set16(RAX, uint16(v))
	case Width32:
		t.Regs.Set32(RAX, uint32(v))
	default:
		t.Regs.Set64(RAX, v)
	}
}

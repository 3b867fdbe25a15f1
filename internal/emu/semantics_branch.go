package emu

import "golang.org/x/arch/x86/x86asm"

// cc is the architectural condition-code predicate evaluated against
// the current Flags, shared by Jcc/SETcc/CMOVcc (one table instead of
// three near-duplicate switches).
type cc func(f *Flags) bool

var ccA = func(f *Flags) bool { return !f.CF && !f.ZF }
var ccAE = func(f *Flags) bool { return !f.CF }
var ccB = func(f *Flags) bool { return f.CF }
var ccBE = func(f *Flags) bool { return f.CF || f.ZF }
var ccE = func(f *Flags) bool { return f.ZF }
var ccG = func(f *Flags) bool { return !f.ZF && f.SF == f.OF }
var ccGE = func(f *Flags) bool { return f.SF == f.OF }
var ccL = func(f *Flags) bool { return f.SF != f.OF }
var ccLE = func(f *Flags) bool { return f.ZF || f.SF != f.OF }
var ccNE = func(f *Flags) bool { return !f.ZF }
var ccNO = func(f *Flags) bool { return !f.OF }
var ccNP = func(f *Flags) bool { return !f.PF }
var ccNS = func(f *Flags) bool { return !f.SF }
var ccO = func(f *Flags) bool { return f.OF }
var ccP = func(f *Flags) bool { return f.PF }
var ccS = func(f *Flags) bool { return f.SF }

func conditionOf(op x86asm.Op) (cc, bool) {
	switch op {
	case x86asm.JA:
		return ccA, true
	case x86asm.JAE:
		return ccAE, true
	case x86asm.JB:
		return ccB, true
	case x86asm.JBE:
		return ccBE, true
	case x86asm.JE:
		return ccE, true
	case x86asm.JG:
		return ccG, true
	case x86asm.JGE:
		return ccGE, true
	case x86asm.JL:
		return ccL, true
	case x86asm.JLE:
		return ccLE, true
	case x86asm.JNE:
		return ccNE, true
	case x86asm.JNO:
		return ccNO, true
	case x86asm.JNP:
		return ccNP, true
	case x86asm.JNS:
		return ccNS, true
	case x86asm.JO:
		return ccO, true
	case x86asm.JP:
		return ccP, true
	case x86asm.JS:
		return ccS, true
	}
	return nil, false
}

func setConditionOf(op x86asm.Op) (cc, bool) {
	switch op {
	case x86asm.SETA:
		return ccA, true
	case x86asm.SETAE:
		return ccAE, true
	case x86asm.SETB:
		return ccB, true
	case x86asm.SETBE:
		return ccBE, true
	case x86asm.SETE:
		return ccE, true
	case x86asm.SETG:
		return ccG, true
	case x86asm.SETGE:
		return ccGE, true
	case x86asm.SETL:
		return ccL, true
	case x86asm.SETLE:
		return ccLE, true
	case x86asm.SETNE:
		return ccNE, true
	case x86asm.SETNO:
		return ccNO, true
	case x86asm.SETNP:
		return ccNP, true
	case x86asm.SETNS:
		return ccNS, true
	case x86asm.SETO:
		return ccO, true
	case x86asm.SETP:
		return ccP, true
	case x86asm.SETS:
		return ccS, true
	}
	return nil, false
}

func cmovConditionOf(op x86asm.Op) (cc, bool) {
	switch op {
	case x86asm.CMOVA:
		return ccA, true
	case x86asm.CMOVAE:
		return ccAE, true
	case x86asm.CMOVB:
		return ccB, true
	case x86asm.CMOVBE:
		return ccBE, true
	case x86asm.CMOVE:
		return ccE, true
	case x86asm.CMOVG:
		return ccG, true
	case x86asm.CMOVGE:
		return ccGE, true
	case x86asm.CMOVL:
		return ccL, true
	case x86asm.CMOVLE:
		return ccLE, true
	case x86asm.CMOVNE:
		return ccNE, true
	case x86asm.CMOVNO:
		return ccNO, true
	case x86asm.CMOVNP:
		return ccNP, true
	case x86asm.CMOVNS:
		return ccNS, true
	case x86asm.CMOVO:
		return ccO, true
	case x86asm.CMOVP:
		return ccP, true
	case x86asm.CMOVS:
		return ccS, true
	}
	return nil, false
}

// opJmp handles near-relative, near-register/memory-indirect, and far
// forms alike: the decoder resolves the target into Args[0] regardless.
func (c *Core) opJmp(t *Thread, inst *x86asm.Inst) error {
	target, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	return c.SetRIP(t, target, true)
}

func (c *Core) opCall(t *Thread, inst *x86asm.Inst) error {
	target, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return err
	}
	_, sz := c.pointerWidth(t)
	retAddr := t.Regs.RIP + uint64(inst.Len)
	sp := t.Regs.Get64(RSP) - sz
	t.Regs.Set64(RSP, sp)
	if sz == 4 {
		c.Maps.WriteU32(sp, uint32(retAddr))
	} else {
		c.Maps.WriteU64(sp, retAddr)
	}
	t.CallStack = append(t.CallStack, retAddr)
	return c.SetRIP(t, target, true)
}

func (c *Core) opRet(t *Thread, inst *x86asm.Inst) error {
	_, sz := c.pointerWidth(t)
	sp := t.Regs.Get64(RSP)
	var target uint64
	if sz == 4 {
		target = uint64(c.Maps.ReadU32(sp))
	} else {
		target = c.Maps.ReadU64(sp)
	}
	sp += sz
	if len(inst.Args) > 0 {
		if imm, ok := inst.Args[0].(x86asm.Imm); ok {
			sp += uint64(imm)
		}
	}
	t.Regs.Set64(RSP, sp)
	if n := len(t.CallStack); n > 0 {
		t.CallStack = t.CallStack[:n-1]
	}
	return c.SetRIP(t, target, true)
}

// opLoop implements LOOP/LOOPE/LOOPNE: decrement (E)CX/RCX, branch
// while nonzero and (for LOOPE/LOOPNE) while ZF matches the expected
// sense. Returns controlFlow=true always since RIP is set explicitly
// either way.
func (c *Core) opLoop(t *Thread, inst *x86asm.Inst) (bool, error) {
	_, sz := c.pointerWidth(t)
	cx := t.Regs.Get64(RCX) - 1
	if sz == 4 {
		cx &= 0xFFFFFFFF
	}
	t.Regs.Set64(RCX, cx)

	take := cx != 0
	switch inst.Op {
	case x86asm.LOOPE:
		take = take && t.Flags.ZF
	case x86asm.LOOPNE:
		take = take && !t.Flags.ZF
	}

	nextRIP := t.Regs.RIP + uint64(inst.Len)
	if !take {
		t.Regs.RIP = nextRIP
		return true, nil
	}
	target, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return true, err
	}
	return true, c.SetRIP(t, target, true)
}

// opJcxz implements JCXZ/JECXZ/JRCXZ: branch when the addressed
// counter register is zero, independent of any arithmetic flag.
func (c *Core) opJcxz(t *Thread, inst *x86asm.Inst) (bool, error) {
	var zero bool
	switch inst.Op {
	case x86asm.JCXZ:
		zero = t.Regs.Get16(RCX) == 0
	case x86asm.JECXZ:
		zero = t.Regs.Get32(RCX) == 0
	default: // JRCXZ
		zero = t.Regs.Get64(RCX) == 0
	}
	nextRIP := t.Regs.RIP + uint64(inst.Len)
	if !zero {
		t.Regs.RIP = nextRIP
		return true, nil
	}
	target, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return true, err
	}
	return true, c.SetRIP(t, target, true)
}

func (c *Core) opJcc(t *Thread, inst *x86asm.Inst, pred cc) (bool, error) {
	nextRIP := t.Regs.RIP + uint64(inst.Len)
	if !pred(&t.Flags) {
		t.Regs.RIP = nextRIP
		return true, nil
	}
	target, err := c.GetOperandValue(t, inst, 0, true)
	if err != nil {
		return true, err
	}
	return true, c.SetRIP(t, target, true)
}

func (c *Core) opSetcc(t *Thread, inst *x86asm.Inst, pred cc) error {
	var v uint64
	if pred(&t.Flags) {
		v = 1
	}
	return c.SetOperandValue(t, inst, 0, v)
}

func (c *Core) opCmovcc(t *Thread, inst *x86asm.Inst, pred cc) error {
	if !pred(&t.Flags) {
		return nil
	}
	v, err := c.GetOperandValue(t, inst, 1, true)
	if err != nil {
		return err
	}
	return c.SetOperandValue(t, inst, 0, v)
}

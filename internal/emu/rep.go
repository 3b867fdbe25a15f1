package emu

import "golang.org/x/arch/x86/x86asm"

// repKindOf classifies a string opcode into the movement/compare
// buckets spec.md §4.5 gives different exit rules for.
func repKindOf(op x86asm.Op, repne bool) RepKind {
	switch op {
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		if repne {
			return RepNE
		}
		return RepE
	default:
		return RepMovement
	}
}

func hasREPNE(inst *x86asm.Inst) bool {
	for _, p := range inst.Prefix {
		if p == 0 {
			break
		}
		if p&^(x86asm.PrefixImplicit|x86asm.PrefixIgnored|x86asm.PrefixInvalid) == x86asm.PrefixREPN {
			return true
		}
	}
	return false
}

// executeRep implements spec.md §4.5's REP/REPE/REPNE state machine
// exactly: rule 1 (RET false-positive) doesn't apply here since
// isRepPrefixed only matches real string opcodes; rule 2 is the RCX=0
// skip; rule 3 executes one iteration, and RIP advances only once the
// state machine returns to None.
func (c *Core) executeRep(t *Thread, d *DecodedInsn) error {
	inst := &d.Inst
	rcxReg := RCX
	getRCX := func() uint64 {
		if t.Is32Bit {
			return uint64(t.Regs.Get32(rcxReg))
		}
		return t.Regs.Get64(rcxReg)
	}
	setRCX := func(v uint64) {
		if t.Is32Bit {
			t.Regs.Set32(rcxReg, uint32(v))
		} else {
			t.Regs.Set64(rcxReg, v)
		}
	}

	if t.Rep == nil {
		if getRCX() == 0 {
			t.Regs.RIP += uint64(inst.Len)
			return nil
		}
		t.Rep = &RepState{InsnAddr: t.Regs.RIP, InsnLen: inst.Len, Kind: repKindOf(inst.Op, hasREPNE(inst))}
	}

	if _, err := c.dispatch(t, inst); err != nil {
		if f, ok := err.(*Fault); ok {
			t.Rep = nil
			return c.exception(t, f)
		}
		return err
	}

	setRCX(getRCX() - 1)

	exit := false
	if getRCX() == 0 {
		exit = true
	} else {
		switch t.Rep.Kind {
		case RepMovement:
			exit = false
		case RepE:
			exit = !t.Flags.ZF
		case RepNE:
			exit = t.Flags.ZF
		}
	}

	if exit {
		t.Rep = nil
		t.Regs.RIP += uint64(inst.Len)
	}
	// while Rep is non-nil, RIP intentionally does not advance: the
	// next Step() re-fetches the same string instruction.
	return nil
}

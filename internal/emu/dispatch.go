package emu

import (
	"math/bits"

	"golang.org/x/arch/x86/x86asm"
)

// dispatch is the tagged-variant switch spec.md §9 asks for in place of
// polymorphic per-instruction dispatch. It returns controlFlow=true when
// the instruction itself already updated RIP (branches, calls, rets),
// so the caller skips the default RIP += len() advance.
func (c *Core) dispatch(t *Thread, inst *x86asm.Inst) (controlFlow bool, err error) {
	switch inst.Op {

	// --- data movement ---
	case x86asm.MOV:
		return false, c.opMov(t, inst)
	case x86asm.MOVZX:
		return false, c.opMovzx(t, inst)
	case x86asm.MOVSX, x86asm.MOVSXD:
		return false, c.opMovsx(t, inst)
	case x86asm.LEA:
		return false, c.opLea(t, inst)
	case x86asm.XCHG:
		return false, c.opXchg(t, inst)
	case x86asm.PUSH:
		return false, c.opPush(t, inst)
	case x86asm.POP:
		return false, c.opPop(t, inst)
	case x86asm.NOP:
		return false, nil

	// --- arithmetic ---
	case x86asm.ADD:
		return false, c.opAdd(t, inst, false)
	case x86asm.ADC:
		return false, c.opAdd(t, inst, true)
	case x86asm.SUB:
		return false, c.opSub(t, inst, false)
	case x86asm.SBB:
		return false, c.opSub(t, inst, true)
	case x86asm.CMP:
		return false, c.opCmp(t, inst)
	case x86asm.INC:
		return false, c.opIncDec(t, inst, true)
	case x86asm.DEC:
		return false, c.opIncDec(t, inst, false)
	case x86asm.NEG:
		return false, c.opNeg(t, inst)
	case x86asm.MUL:
		return false, c.opMul(t, inst)
	case x86asm.IMUL:
		return false, c.opImul(t, inst)
	case x86asm.DIV:
		return false, c.opDiv(t, inst)
	case x86asm.IDIV:
		return false, c.opIdiv(t, inst)

	// --- logic / bit manipulation ---
	case x86asm.AND:
		return false, c.opLogic(t, inst, func(a, b uint64) uint64 { return a & b }, true)
	case x86asm.OR:
		return false, c.opLogic(t, inst, func(a, b uint64) uint64 { return a | b }, true)
	case x86asm.XOR:
		return false, c.opLogic(t, inst, func(a, b uint64) uint64 { return a ^ b }, true)
	case x86asm.TEST:
		return false, c.opLogic(t, inst, func(a, b uint64) uint64 { return a & b }, false)
	case x86asm.NOT:
		return false, c.opNot(t, inst)
	case x86asm.SHL:
		return false, c.opShift(t, inst, shiftLeft)
	case x86asm.SHR:
		return false, c.opShift(t, inst, shiftRight)
	case x86asm.SAR:
		return false, c.opShift(t, inst, shiftArith)
	case x86asm.ROL:
		return false, c.opRotate(t, inst, true, false)
	case x86asm.ROR:
		return false, c.opRotate(t, inst, false, false)
	case x86asm.RCL:
		return false, c.opRotate(t, inst, true, true)
	case x86asm.RCR:
		return false, c.opRotate(t, inst, false, true)
	case x86asm.SHLD:
		return false, c.opShld(t, inst)
	case x86asm.SHRD:
		return false, c.opShrd(t, inst)
	case x86asm.BT:
		return false, c.opBitTest(t, inst, btNone)
	case x86asm.BTC:
		return false, c.opBitTest(t, inst, btComplement)
	case x86asm.BTR:
		return false, c.opBitTest(t, inst, btReset)
	case x86asm.BTS:
		return false, c.opBitTest(t, inst, btSet)
	case x86asm.BSF:
		return false, c.opBsf(t, inst)
	case x86asm.BSR:
		return false, c.opBsr(t, inst)

	// --- control flow ---
	case x86asm.JMP:
		return true, c.opJmp(t, inst)
	case x86asm.CALL:
		return true, c.opCall(t, inst)
	case x86asm.RET:
		return true, c.opRet(t, inst)
	case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return c.opLoop(t, inst)
	case x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		return c.opJcxz(t, inst)

	default:
		if cc, ok := conditionOf(inst.Op); ok {
			return c.opJcc(t, inst, cc)
		}
		if cc, ok := setConditionOf(inst.Op); ok {
			return false, c.opSetcc(t, inst, cc)
		}
		if cc, ok := cmovConditionOf(inst.Op); ok {
			return false, c.opCmovcc(t, inst, cc)
		}
	}

	// --- string ops (single iteration; REP drives repeated calls
	// through executeRep in rep.go) ---
	switch inst.Op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD, x86asm.MOVSQ:
		return false, c.opMovs(t, inst)
	case x86asm.STOSB, x86asm.STOSW, x86asm.STOSD, x86asm.STOSQ:
		return false, c.opStos(t, inst)
	case x86asm.LODSB, x86asm.LODSW, x86asm.LODSD, x86asm.LODSQ:
		return false, c.opLods(t, inst)
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ:
		return false, c.opCmps(t, inst)
	case x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		return false, c.opScas(t, inst)
	}

	// --- x87 ---
	switch inst.Op {
	case x86asm.FLD:
		return false, c.opFld(t, inst)
	case x86asm.FST, x86asm.FSTP:
		return false, c.opFst(t, inst, inst.Op == x86asm.FSTP)
	case x86asm.FADD, x86asm.FADDP:
		return false, c.opFArith(t, inst, func(a, b float64) float64 { return a + b }, inst.Op == x86asm.FADDP)
	case x86asm.FSUB, x86asm.FSUBP:
		return false, c.opFArith(t, inst, func(a, b float64) float64 { return a - b }, inst.Op == x86asm.FSUBP)
	case x86asm.FMUL, x86asm.FMULP:
		return false, c.opFArith(t, inst, func(a, b float64) float64 { return a * b }, inst.Op == x86asm.FMULP)
	case x86asm.FDIV, x86asm.FDIVP:
		return false, c.opFArith(t, inst, func(a, b float64) float64 { return a / b }, inst.Op == x86asm.FDIVP)
	case x86asm.FLDZ:
		t.FPU.Push(0)
		return false, nil
	case x86asm.FLD1:
		t.FPU.Push(1)
		return false, nil
	case x86asm.FLDPI:
		t.FPU.Push(3.14159265358979323846)
		return false, nil
	case x86asm.FXCH:
		a, b := t.FPU.St(0), t.FPU.St(1)
		t.FPU.SetSt(0, b)
		t.FPU.SetSt(1, a)
		return false, nil
	case x86asm.FNINIT:
		t.FPU.Init()
		return false, nil
	case x86asm.FXSAVE, x86asm.FXSAVE64:
		return false, c.opFxsave(t, inst)
	case x86asm.FXRSTOR, x86asm.FXRSTOR64:
		return false, c.opFxrstor(t, inst)
	}

	// --- SSE / AVX ---
	switch inst.Op {
	case x86asm.MOVUPS, x86asm.MOVAPS, x86asm.MOVDQU, x86asm.MOVDQA, x86asm.VMOVDQU:
		return false, c.opMovXmm(t, inst)
	case x86asm.PAND:
		return false, c.opPLogic(t, inst, func(a, b U128) U128 { return U128{a.Lo & b.Lo, a.Hi & b.Hi} })
	case x86asm.POR:
		return false, c.opPLogic(t, inst, func(a, b U128) U128 { return U128{a.Lo | b.Lo, a.Hi | b.Hi} })
	case x86asm.PXOR:
		return false, c.opPLogic(t, inst, func(a, b U128) U128 { return U128{a.Lo ^ b.Lo, a.Hi ^ b.Hi} })
	case x86asm.PANDN:
		return false, c.opPLogic(t, inst, func(a, b U128) U128 { return U128{^a.Lo & b.Lo, ^a.Hi & b.Hi} })
	case x86asm.PADDB, x86asm.PADDW, x86asm.PADDD:
		return false, c.opPAdd(t, inst)
	case x86asm.PSUBB:
		return false, c.opPSubB(t, inst)
	case x86asm.PCMPEQB, x86asm.PCMPEQW, x86asm.PCMPEQD:
		return false, c.opPCmpEq(t, inst)
	case x86asm.PCMPGTB:
		return false, c.opPCmpGtB(t, inst)
	}

	return false, &ErrUnimplemented{Mnemonic: inst.Op.String(), RIP: t.Regs.RIP}
}

// execADX runs ADCX/ADOX: dst += src + carry-in, updating only CF
// (ADCX) or only OF (ADOX) — spec.md §8's bit-exact scenario table.
func execADX(c *Core, t *Thread, d *DecodedInsn) {
	w := Width32
	if d.Dst >= x86asm.RAX && d.Dst <= x86asm.R15 {
		w = Width64
	}
	dst := c.ReadGPR(t, d.Dst)
	src := c.ReadGPR(t, d.Src)
	m := mask(w)
	dst &= m
	src &= m

	if d.Extra == ExtraADCX {
		sum, carry := bits.Add64(dst, src, b2u(t.Flags.CF))
		carryOut := sum > m || carry != 0
		c.WriteGPR(t, d.Dst, sum&m)
		t.Flags.CF = carryOut
	} else { // ExtraADOX
		sum, carry := bits.Add64(dst, src, b2u(t.Flags.OF))
		carryOut := sum > m || carry != 0
		c.WriteGPR(t, d.Dst, sum&m)
		t.Flags.OF = carryOut
	}
}

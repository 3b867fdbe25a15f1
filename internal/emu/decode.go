package emu

import (
	"golang.org/x/arch/x86/x86asm"
)

// ExtraOp enumerates mnemonics the x86asm decoder does not recognize
// (the ADX extension) but spec.md §8's bit-exact scenarios require.
// This is a deliberate gap-fill: x86asm's opcode table predates ADCX/ADOX, so these two encodings are recognized
// by hand from their raw bytes before falling back to x86asm.Decode.
type ExtraOp int

const (
	ExtraNone ExtraOp = iota
	ExtraADCX
	ExtraADOX
)

// DecodedInsn is one entry of the decode cache: either a normal
// x86asm.Inst or, for ADCX/ADOX, a minimal hand-decoded record carrying
// just the two GPR operands the instruction needs.
type DecodedInsn struct {
	Addr  uint64
	Len   int
	Extra ExtraOp
	Dst   x86asm.Reg // ADCX/ADOX destination/source register (both operands are GPRs)
	Src   x86asm.Reg
	Inst  x86asm.Inst
}

// tryDecodeADX recognizes ADCX (66 0F 38 F6 /r) and ADOX (F3 0F 38 F6
// /r) from raw bytes. Both use a standard ModRM byte with register-only
// addressing in the emulated subset (memory-source ADCX/ADOX are not
// implemented).
func tryDecodeADX(b []byte, mode int) (*DecodedInsn, bool) {
	if len(b) < 4 {
		return nil, false
	}
	rex := uint8(0)
	i := 0
	var extra ExtraOp
	switch b[i] {
	case 0x66:
		extra = ExtraADCX
		i++
	case 0xF3:
		extra = ExtraADOX
		i++
	default:
		return nil, false
	}
	if i < len(b) && b[i]&0xF0 == 0x40 {
		rex = b[i]
		i++
	}
	if i+2 >= len(b) || b[i] != 0x0F || b[i+1] != 0x38 || b[i+2] != 0xF6 {
		return nil, false
	}
	i += 3
	if i >= len(b) {
		return nil, false
	}
	modrm := b[i]
	i++
	mod := modrm >> 6
	if mod != 3 {
		// memory operand form not implemented in this subset.
		return nil, false
	}
	regField := (modrm >> 3) & 7
	rmField := modrm & 7
	if rex&0x04 != 0 { // REX.R
		regField |= 8
	}
	if rex&0x01 != 0 { // REX.B
		rmField |= 8
	}
	w := rex&0x08 != 0
	dst := gpr32Or64(regField, w)
	src := gpr32Or64(rmField, w)
	return &DecodedInsn{Len: i, Extra: extra, Dst: dst, Src: src}, true
}

func gpr32Or64(n uint8, wide bool) x86asm.Reg {
	if wide {
		return x86asm.RAX + x86asm.Reg(n)
	}
	return x86asm.EAX + x86asm.Reg(n)
}

// decodeAt decodes one instruction at the given bytes, preferring the
// ADX special case, falling back to x86asm.Decode.
func decodeAt(b []byte, mode int) (*DecodedInsn, error) {
	if d, ok := tryDecodeADX(b, mode); ok {
		return d, nil
	}
	inst, err := x86asm.Decode(b, mode)
	if err != nil {
		return nil, err
	}
	return &DecodedInsn{Len: inst.Len, Inst: inst}, nil
}

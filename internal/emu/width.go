package emu

import "golang.org/x/arch/x86/x86asm"

// OperandWidth collapses the decoder's memory-size/register-kind
// metadata to one of the five widths the resolver understands (spec.md
// §9: "~30 distinct tags collapsing to 5 widths... keep a single
// translation table and use it everywhere").
type OperandWidth int

const (
	Width8 OperandWidth = iota
	Width16
	Width32
	Width64
	Width128
	Width256
)

func (w OperandWidth) Bits() int {
	switch w {
	case Width8:
		return 8
	case Width16:
		return 16
	case Width32:
		return 32
	case Width64:
		return 64
	case Width128:
		return 128
	case Width256:
		return 256
	}
	return 0
}

// widthOfMemBytes maps x86asm.Inst.MemBytes (1,2,4,8,16,32,...) to the
// collapsed width table.
func widthOfMemBytes(n int) OperandWidth {
	switch {
	case n <= 1:
		return Width8
	case n <= 2:
		return Width16
	case n <= 4:
		return Width32
	case n <= 8:
		return Width64
	case n <= 16:
		return Width128
	default:
		return Width256
	}
}

// widthOfReg reports the width implied by a decoded register operand.
func widthOfReg(r x86asm.Reg) OperandWidth {
	switch {
	case r >= x86asm.AL && r <= x86asm.R15B:
		return Width8
	case r >= x86asm.AX && r <= x86asm.R15W:
		return Width16
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return Width32
	case r >= x86asm.RAX && r <= x86asm.R15:
		return Width64
	case r >= x86asm.X0 && r <= x86asm.X15:
		return Width128
	default:
		return Width64
	}
}

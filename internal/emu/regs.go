package emu

// Reg names a general-purpose register independent of access width; the
// width-specific accessors below apply the x86 aliasing rules.
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	numGPR
)

var regNames64 = [numGPR]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string {
	if r >= 0 && r < numGPR {
		return regNames64[r]
	}
	return "reg?"
}

// Regs is the per-thread architectural register file: 64-bit GPRs with
// sub-register aliasing, RIP, 16 XMM, 16 YMM (YMM[127:0] aliases XMM),
// and segment-base scratch values used by the FS/GS magic table.
// Grounded on spec.md §3's Register File contract; no teacher ARM64
// equivalent exists since ARM64 has no sub-register aliasing.
type Regs struct {
	gpr [numGPR]uint64
	RIP uint64

	XMM [16]U128
	YMM [16]U128 // upper 128 bits only; lower 128 lives in XMM

	FSBase uint64
	GSBase uint64
}

func (r *Regs) Get64(reg Reg) uint64 { return r.gpr[reg] }
func (r *Regs) Set64(reg Reg, v uint64) { r.gpr[reg] = v }

// Get32/Set32 implement "writing the 32-bit form zeroes the upper 32
// bits" (spec.md §3, and the TESTABLE PROPERTIES invariant in §8).
func (r *Regs) Get32(reg Reg) uint32 { return uint32(r.gpr[reg]) }
func (r *Regs) Set32(reg Reg, v uint32) { r.gpr[reg] = uint64(v) }

// Get16/Set16: writing the 16-bit form preserves bits [63:16].
func (r *Regs) Get16(reg Reg) uint16 { return uint16(r.gpr[reg]) }
func (r *Regs) Set16(reg Reg, v uint16) {
	r.gpr[reg] = (r.gpr[reg] &^ 0xFFFF) | uint64(v)
}

// Get8Low/Set8Low are AL/CL/.../R15B: writing preserves bits [63:8].
func (r *Regs) Get8Low(reg Reg) uint8 { return uint8(r.gpr[reg]) }
func (r *Regs) Set8Low(reg Reg, v uint8) {
	r.gpr[reg] = (r.gpr[reg] &^ 0xFF) | uint64(v)
}

// Get8High/Set8High are AH/CH/DH/BH, the legacy high-byte views that
// exist only for RAX/RCX/RDX/RBX and only without a REX prefix; the
// decoder (x86asm) never produces these for R8-R15, so no REX-conflict
// handling is required here.
func (r *Regs) Get8High(reg Reg) uint8 { return uint8(r.gpr[reg] >> 8) }
func (r *Regs) Set8High(reg Reg, v uint8) {
	r.gpr[reg] = (r.gpr[reg] &^ 0xFF00) | (uint64(v) << 8)
}

// GetXMM / SetXMM are the 128-bit SSE register accessors.
func (r *Regs) GetXMM(i int) U128    { return r.XMM[i] }
func (r *Regs) SetXMM(i int, v U128) { r.XMM[i] = v }

// GetYMM/SetYMM compose the low 128 bits (XMM alias) with the upper 128
// bits tracked separately, per spec.md §3.
func (r *Regs) GetYMM(i int) U256 {
	return U256{Lo: r.XMM[i], Hi: r.YMM[i]}
}

func (r *Regs) SetYMM(i int, v U256) {
	r.XMM[i] = v.Lo
	r.YMM[i] = v.Hi
}

// SetXMMZeroUpper writes only the low 128 bits and, per the AVX
// zeroing-idiom semantics used by VEX-encoded 128-bit operations,
// clears the corresponding YMM upper lane.
func (r *Regs) SetXMMZeroUpper(i int, v U128) {
	r.XMM[i] = v
	r.YMM[i] = U128{}
}

// Clone produces an independent copy for CONTEXT snapshot/restore and
// FXSAVE-style round-trips.
func (r *Regs) Clone() *Regs {
	c := *r
	return &c
}

package emu

// FPU models the x87 floating-point stack: 8 logical ST(i) slots backed
// by a ring buffer indexed through Top, plus the control/status/tag
// words (spec.md §3/§4.5). IEEE-754 float64 stands in for the 80-bit
// extended format, matching the precision the spec's FXSAVE64/FLD
// round-trip scenario (spec.md §8) exercises.
type FPU struct {
	st      [8]float64
	Top     int // top-of-stack pointer
	Control uint16
	Status  uint16
	Tag     uint8 // abridged: bit i set => physical slot i empty
	LastIP  uint64
}

const (
	fcwDefault = 0x037F // round-to-nearest, 64-bit precision, all exceptions masked
)

func NewFPU() *FPU {
	f := &FPU{Control: fcwDefault, Tag: 0xFF}
	return f
}

// physIndex maps a logical ST(i) index to its backing ring-buffer slot.
func (f *FPU) physIndex(i int) int {
	return (f.Top + i) & 7
}

// St returns ST(i).
func (f *FPU) St(i int) float64 { return f.st[f.physIndex(i)] }

// SetSt writes ST(i) directly (used by FXCH, the register forms of
// FST/FSTP, and the x87 arithmetic ops).
func (f *FPU) SetSt(i int, v float64) {
	f.st[f.physIndex(i)] = v
	f.Tag &^= 1 << uint(f.physIndex(i))
}

// Push decrements Top (ring-buffer rotation) and stores v at the new
// ST(0), per spec.md §3's push(x).
func (f *FPU) Push(v float64) {
	f.Top = (f.Top - 1) & 7
	f.st[f.Top] = v
	f.Tag &^= 1 << uint(f.Top)
}

// Pop returns ST(0) and advances Top, marking the vacated slot empty.
func (f *FPU) Pop() float64 {
	v := f.st[f.Top]
	f.Tag |= 1 << uint(f.Top)
	f.Top = (f.Top + 1) & 7
	return v
}

// Init implements FNINIT: reset control/status words, empty every slot.
func (f *FPU) Init() {
	f.Control = fcwDefault
	f.Status = 0
	f.Tag = 0xFF
	f.Top = 0
	f.st = [8]float64{}
}

// condC0..C3 accessors over the status word's condition-code bits.
func (f *FPU) setC(bit uint, v bool) {
	if v {
		f.Status |= 1 << bit
	} else {
		f.Status &^= 1 << bit
	}
}

func (f *FPU) SetC0(v bool) { f.setC(8, v) }
func (f *FPU) SetC1(v bool) { f.setC(9, v) }
func (f *FPU) SetC2(v bool) { f.setC(10, v) }
func (f *FPU) SetC3(v bool) { f.setC(14, v) }

// FxsaveImage captures the FXSAVE state, abridged to the fields this
// core tracks: control word, status word, abridged tag byte, Top, and
// the 8 physical register slots as IEEE-754 doubles (no 80-bit
// extended format is produced). Grounded on spec.md §8's
// "FXSAVE64 + FLD round-trip" scenario and
// original_source/.../structures/kernel64.rs's documented layout.
type FxsaveImage struct {
	ControlWord uint16
	StatusWord  uint16
	TagByte     uint8
	Top         int
	ST          [8]float64
}

func (f *FPU) Save() FxsaveImage {
	img := FxsaveImage{
		ControlWord: f.Control,
		StatusWord:  f.Status,
		TagByte:     f.Tag,
		Top:         f.Top,
	}
	for i := 0; i < 8; i++ {
		img.ST[i] = f.st[i]
	}
	return img
}

func (f *FPU) Restore(img FxsaveImage) {
	f.Control = img.ControlWord
	f.Status = img.StatusWord
	f.Tag = img.TagByte
	f.Top = img.Top
	for i := 0; i < 8; i++ {
		f.st[i] = img.ST[i]
	}
}

func (f *FPU) Clone() *FPU {
	c := *f
	return &c
}

package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/vireolabs/mwemu/internal/emu"
)

// gprOrder lists the 16 GPRs in the fixed order register-delta columns
// render them, matching emu.Regs' own RAX..R15 declaration order.
var gprOrder = [16]emu.Reg{
	emu.RAX, emu.RCX, emu.RDX, emu.RBX, emu.RSP, emu.RBP, emu.RSI, emu.RDI,
	emu.R8, emu.R9, emu.R10, emu.R11, emu.R12, emu.R13, emu.R14, emu.R15,
}

// Recorder writes the CSV execution trace spec.md §6 describes: one
// record per instruction, columns `index, rip, bytes, disassembly,
// register-delta, memory-delta, comments`. Grounded on the teacher's
// event-collection types above and SPEC_FULL.md's choice of
// encoding/csv over a hand-rolled writer.
type Recorder struct {
	w     *csv.Writer
	index uint64

	pendingWrites []memWrite
}

type memWrite struct {
	addr uint64
	data []byte
}

// NewRecorder wraps w in a csv.Writer and emits the header row.
func NewRecorder(w io.Writer) (*Recorder, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "rip", "bytes", "disassembly", "register-delta", "memory-delta", "comments"}); err != nil {
		return nil, err
	}
	return &Recorder{w: cw}, nil
}

// AttachMemoryLog installs maps' write hook so memory-delta columns
// get populated; call once, before the run loop starts.
func (r *Recorder) AttachMemoryLog(maps *emu.AddressSpace) {
	maps.SetWriteHook(func(addr uint64, data []byte) {
		cp := make([]byte, len(data))
		copy(cp, data)
		r.pendingWrites = append(r.pendingWrites, memWrite{addr: addr, data: cp})
	})
}

// Record writes one row for the instruction that ran between pre and
// post (regs sampled immediately before/after dispatch). index 0 dumps
// every register per spec.md §6; every later row only lists the
// registers that actually changed.
func (r *Recorder) Record(pre, post *emu.Regs, rip uint64, insnBytes []byte, disasm, comment string) error {
	var regDelta string
	if r.index == 0 {
		regDelta = dumpAll(post)
	} else {
		regDelta = dumpDelta(pre, post)
	}

	memDelta := r.drainMemDelta()

	row := []string{
		fmt.Sprintf("%d", r.index),
		fmt.Sprintf("0x%x", rip),
		fmt.Sprintf("%x", insnBytes),
		disasm,
		regDelta,
		memDelta,
		comment,
	}
	r.index++
	return r.w.Write(row)
}

// Flush flushes the underlying csv.Writer.
func (r *Recorder) Flush() error {
	r.w.Flush()
	return r.w.Error()
}

func (r *Recorder) drainMemDelta() string {
	if len(r.pendingWrites) == 0 {
		return ""
	}
	var b strings.Builder
	for i, w := range r.pendingWrites {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[0x%x]=%x", w.addr, w.data)
	}
	r.pendingWrites = r.pendingWrites[:0]
	return b.String()
}

func dumpAll(regs *emu.Regs) string {
	var b strings.Builder
	for i, reg := range gprOrder {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=0x%x", reg, regs.Get64(reg))
	}
	fmt.Fprintf(&b, " rip=0x%x", regs.RIP)
	return b.String()
}

func dumpDelta(pre, post *emu.Regs) string {
	var b strings.Builder
	first := true
	for _, reg := range gprOrder {
		if pre.Get64(reg) == post.Get64(reg) {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&b, "%s=0x%x", reg, post.Get64(reg))
	}
	if pre.RIP != post.RIP {
		if !first {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "rip=0x%x", post.RIP)
	}
	return b.String()
}

// Package script wires github.com/dop251/goja as an optional breakpoint
// predicate / trace filter hook (SPEC_FULL.md §8 DOMAIN STACK), the Go
// analogue of the original's scripting ambitions referenced from
// spec.md's peripheral-conveniences carve-out. A script is a small JS
// expression or function evaluated with the current thread's registers
// exposed as globals; it decides whether a breakpoint hit should
// actually stop execution.
package script

import (
	"fmt"
	"os"

	"github.com/dop251/goja"

	"github.com/vireolabs/mwemu/internal/emu"
)

// Predicate wraps a compiled goja program that is re-evaluated on every
// call to Eval, with a fresh set of register globals each time.
type Predicate struct {
	vm      *goja.Runtime
	program *goja.Program
}

// Load compiles the JS source at path. The script's last expression (or
// an explicit `result = ...` assignment) determines the predicate's
// outcome: truthy means "stop", falsy means "continue past this hit".
func Load(path string) (*Predicate, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	prog, err := goja.Compile(path, string(src), false)
	if err != nil {
		return nil, fmt.Errorf("script: compile %s: %w", path, err)
	}
	return &Predicate{vm: goja.New(), program: prog}, nil
}

// regGlobals is the set of GPRs exposed to the script, matching
// trace.Recorder's gprOrder so scripts and CSV columns agree on names.
var regGlobals = [16]emu.Reg{
	emu.RAX, emu.RCX, emu.RDX, emu.RBX, emu.RSP, emu.RBP, emu.RSI, emu.RDI,
	emu.R8, emu.R9, emu.R10, emu.R11, emu.R12, emu.R13, emu.R14, emu.R15,
}

// Eval sets the current thread's registers, the breakpoint reason, and
// the triggering address as JS globals, then runs the script and
// reports whether it evaluated truthy.
func (p *Predicate) Eval(t *emu.Thread, reason string, addr uint64) bool {
	for _, reg := range regGlobals {
		p.vm.Set(reg.String(), t.Regs.Get64(reg))
	}
	p.vm.Set("rip", t.Regs.RIP)
	p.vm.Set("reason", reason)
	p.vm.Set("addr", addr)
	p.vm.Set("zf", t.Flags.ZF)
	p.vm.Set("cf", t.Flags.CF)
	p.vm.Set("sf", t.Flags.SF)
	p.vm.Set("of", t.Flags.OF)

	v, err := p.vm.RunProgram(p.program)
	if err != nil {
		return true // a broken predicate fails safe: stop and let the operator look.
	}
	return v.ToBoolean()
}

package emu

import (
	"context"

	"github.com/vireolabs/mwemu/internal/config"
	"golang.org/x/arch/x86/x86asm"
)

// CodeHookFunc / AddressHookFunc mirror the teacher's hook shapes
// (internal/emulator/emulator.go), retargeted from ARM64 addresses to
// x86 RIP values and from a bool-returning single hook to the same
// "return true to stop" convention the teacher used.
type CodeHookFunc func(c *Core, t *Thread, addr uint64, length int)
type AddressHookFunc func(c *Core, t *Thread) bool

// Core owns every piece of THE CORE (spec.md §1): the address space,
// the scheduler (which owns the thread list), the decode cache, and the
// stub registry boundary. It is the explicit reference spec.md §9 asks
// for in place of an implicit global.
type Core struct {
	Maps  *AddressSpace
	Sched *Scheduler
	Cache *DecodeCache
	Stubs StubRegistry
	Cfg   *config.Config

	Breakpoints *Breakpoints
	insnCount   uint64

	Mode int // 16, 32, or 64 (x86asm processor mode)

	// breakDecodeLoop is set by dispatchLibrary when a stub hook returns
	// true (library.go), and checked at the end of stepOnce to request a
	// stop via Stop(). Reset at the top of every stepOnce.
	breakDecodeLoop bool
	stopRequested   bool

	codeHooks []CodeHookFunc
	addrHooks map[uint64][]AddressHookFunc

	loopHistory map[uint64]loopEntry

	tebAddr, pebAddr, localeAddr, tlsArrayAddr, contextAddr uint64

	OnTrace func(t *Thread, addr uint64, d *DecodedInsn, preFlags Flags)
}

type loopEntry struct {
	regHash uint64
	count   int
}

func NewCore(cfg *config.Config) *Core {
	maps := NewAddressSpace()
	c := &Core{
		Maps:        maps,
		Sched:       NewScheduler(),
		Cache:       NewDecodeCache(),
		Cfg:         cfg,
		Mode:        64,
		addrHooks:   map[uint64][]AddressHookFunc{},
		loopHistory: map[uint64]loopEntry{},
	}
	if cfg.Is32Bit {
		c.Mode = 32
	}
	maps.SetExecWriteHook(c.Cache.InvalidateRange)
	return c
}

func (c *Core) HookCode(fn CodeHookFunc) { c.codeHooks = append(c.codeHooks, fn) }

func (c *Core) HookAddress(addr uint64, fn AddressHookFunc) {
	c.addrHooks[addr] = append(c.addrHooks[addr], fn)
}

func (c *Core) RemoveAddressHooks(addr uint64) { delete(c.addrHooks, addr) }

// Stop requests Run to return at the next instruction boundary,
// matching spec.md §5's "console-driven stop flag... polled at the top
// of the instruction loop".
func (c *Core) Stop() { c.stopRequested = true }

// Run executes instructions until ctx is canceled, the scheduler is
// starved, a fault goes unhandled, or an emulator-limit error occurs.
// It consolidates spec.md §9's step()/run() duplication: both Run and
// Step call stepOnce.
func (c *Core) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if c.stopRequested {
			return nil
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
}

// Step executes exactly one instruction on the currently selected
// thread, performing scheduler selection first (spec.md data-flow in
// §2).
func (c *Core) Step() error {
	if err := c.Sched.Select(); err != nil {
		return err
	}
	t := c.Sched.Current()
	return c.stepOnce(t)
}

// stepOnce is the single per-instruction function spec.md §9 asks the
// reimplementation to consolidate step()/run() into. Grounded on
// original_source/.../emu/execution.rs's run_single_threaded body.
func (c *Core) stepOnce(t *Thread) error {
	rip := t.Regs.RIP

	c.insnCount++
	if c.Breakpoints != nil {
		c.Breakpoints.checkStep(rip, c.insnCount)
	}

	d := c.Cache.Lookup(rip)
	if d == nil {
		c.Cache.Refill(rip, c.Mode, func(addr, n uint64) []byte {
			return c.readCodeWindow(addr, n)
		})
		d = c.Cache.Lookup(rip)
		if d == nil {
			return &ErrUnimplemented{Mnemonic: "<undecodable>", RIP: rip}
		}
	}

	for _, h := range c.codeHooks {
		h(c, t, rip, d.Len)
	}
	for _, h := range c.addrHooks[rip] {
		if h(c, t) {
			return nil
		}
	}

	preFlags := t.Flags.Clone()
	c.breakDecodeLoop = false

	if err := c.execute(t, d); err != nil {
		return err
	}

	// A stub hook returning true (library.go dispatchLibrary) asks the
	// core to stop the run loop entirely, e.g. ExitProcess/TerminateProcess.
	if c.breakDecodeLoop {
		c.Stop()
	}

	if c.OnTrace != nil {
		c.OnTrace(t, rip, d, preFlags)
	}

	if c.Cfg.MaxInfiniteLoopRepeat > 0 {
		if err := c.checkInfiniteLoop(t, rip); err != nil {
			return err
		}
	}

	return nil
}

func (c *Core) readCodeWindow(addr, n uint64) []byte {
	buf := make([]byte, n)
	for i := uint64(0); i < n; i++ {
		r := c.Maps.GetByAddr(addr + i)
		if r == nil || !r.Perm.Readable() {
			return buf[:i]
		}
		buf[i] = r.Data[r.off(addr+i)]
	}
	return buf
}

// checkInfiniteLoop implements the supplemented peripheral safety
// convenience from SPEC_FULL.md §4.5: a repeating (RIP, register-hash)
// pair beyond the configured threshold surfaces ErrInfiniteLoop.
func (c *Core) checkInfiniteLoop(t *Thread, rip uint64) error {
	h := regHash(&t.Regs)
	e := c.loopHistory[rip]
	if e.regHash == h {
		e.count++
	} else {
		e = loopEntry{regHash: h, count: 1}
	}
	c.loopHistory[rip] = e
	if e.count > c.Cfg.MaxInfiniteLoopRepeat {
		return &ErrInfiniteLoop{RIP: rip, Count: e.count}
	}
	return nil
}

func regHash(r *Regs) uint64 {
	var h uint64 = 1469598103934665603
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211
	}
	for i := Reg(0); i < numGPR; i++ {
		mix(r.Get64(i))
	}
	mix(r.RIP)
	return h
}

// execute dispatches one decoded instruction to its semantics
// implementation, including the ADX special-case and the REP state
// machine, then advances RIP unless control flow or an in-progress REP
// says otherwise (spec.md §4.5).
func (c *Core) execute(t *Thread, d *DecodedInsn) error {
	if d.Extra != ExtraNone {
		execADX(c, t, d)
		t.Regs.RIP += uint64(d.Len)
		return nil
	}

	inst := &d.Inst

	if isRepPrefixed(inst) {
		return c.executeRep(t, d)
	}

	nextRIP := t.Regs.RIP + uint64(inst.Len)
	controlFlow, err := c.dispatch(t, inst)
	if err != nil {
		if f, ok := err.(*Fault); ok {
			return c.exception(t, f)
		}
		return err
	}
	if !controlFlow {
		t.Regs.RIP = nextRIP
	}
	return nil
}

func isRepPrefixed(inst *x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD, x86asm.MOVSQ,
		x86asm.STOSB, x86asm.STOSW, x86asm.STOSD, x86asm.STOSQ,
		x86asm.LODSB, x86asm.LODSW, x86asm.LODSD, x86asm.LODSQ,
		x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		for _, p := range inst.Prefix {
			if p == 0 {
				break
			}
			base := p &^ (x86asm.PrefixImplicit | x86asm.PrefixIgnored | x86asm.PrefixInvalid)
			if base == x86asm.PrefixREP || base == x86asm.PrefixREPN {
				return true
			}
		}
	}
	return false
}

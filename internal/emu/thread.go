package emu

import "github.com/google/uuid"

// SEHRecord mirrors one node of the guest's FS:[0]-rooted SEH linked
// list. The list itself lives in guest memory (spec.md §9: "it is the
// guest's problem, not ours"); this struct is only used when the core
// needs to read/write a node during exception dispatch.
type SEHRecord struct {
	Next    uint64
	Handler uint64
}

// Thread is the per-thread bundle from spec.md §3 ("Thread Context").
// Exactly one "current" thread index is owned by the Scheduler, never a
// pointer into this slice, per spec.md §9's cyclic-structure note.
type Thread struct {
	ID     int
	Handle uuid.UUID

	Regs  Regs
	Flags Flags
	FPU   *FPU

	SEHHead    uint64
	VEHHandler uint64
	UEFHandler uint64

	TLS [64]uint64
	FLS [64]uint64
	// FSMap holds the Linux per-thread FS-segment base table consulted
	// in place of the Windows magic-offset table (spec.md §4.2).
	FSMap map[uint64]uint64

	CallStack []uint64

	Suspended   bool
	WakeTick    uint64
	BlockedOnCS *uint32

	// LastError mirrors the TEB's per-thread last-error slot that
	// GetLastError/SetLastError expose to the guest.
	LastError uint32

	Is32Bit bool
	Linux   bool

	Rep *RepState
}

// RepState tracks an in-progress REP/REPE/REPNE string operation
// (spec.md §4.5). A nil Rep means "None": RIP only advances past the
// string instruction once Rep returns to nil.
type RepState struct {
	InsnAddr uint64 // address of the string instruction being repeated
	InsnLen  int
	Kind     RepKind
}

type RepKind int

const (
	RepMovement  RepKind = iota // MOVS/STOS/LODS: always continue until RCX=0
	RepE                        // CMPS/SCAS under REPE: exit when ZF=0
	RepNE                       // CMPS/SCAS under REPNE: exit when ZF=1
)

func NewThread(id int, is32Bit, linux bool) *Thread {
	return &Thread{
		ID:      id,
		Handle:  uuid.New(),
		FPU:     NewFPU(),
		FSMap:   map[uint64]uint64{},
		Is32Bit: is32Bit,
		Linux:   linux,
	}
}

// Eligible reports whether the scheduler may select this thread, per
// spec.md §3's Thread Context invariants.
func (t *Thread) Eligible(tick uint64) bool {
	return !t.Suspended && t.WakeTick <= tick && t.BlockedOnCS == nil
}

package emu

import "testing"

func TestFPUPushPopRingBuffer(t *testing.T) {
	f := NewFPU()
	f.Push(1.5)
	f.Push(2.5)

	if got := f.St(0); got != 2.5 {
		t.Fatalf("ST(0) = %v, want 2.5", got)
	}
	if got := f.St(1); got != 1.5 {
		t.Fatalf("ST(1) = %v, want 1.5", got)
	}

	if got := f.Pop(); got != 2.5 {
		t.Fatalf("Pop() = %v, want 2.5", got)
	}
	if got := f.St(0); got != 1.5 {
		t.Fatalf("after pop, ST(0) = %v, want 1.5", got)
	}
}

func TestFPUPopMarksSlotEmpty(t *testing.T) {
	f := NewFPU()
	f.Push(3.0)
	top := f.Top
	f.Pop()
	if f.Tag&(1<<uint(top)) == 0 {
		t.Fatal("popped slot must be marked empty in the tag byte")
	}
}

func TestFPUInitResetsState(t *testing.T) {
	f := NewFPU()
	f.Push(1.0)
	f.SetC0(true)
	f.Init()

	if f.Control != fcwDefault || f.Status != 0 || f.Tag != 0xFF || f.Top != 0 {
		t.Fatalf("Init did not fully reset: %+v", f)
	}
}

func TestFXSAVERoundTrip(t *testing.T) {
	f := NewFPU()
	f.Push(3.25)
	f.Push(-1.5)
	f.SetC2(true)

	img := f.Save()

	g := NewFPU()
	g.Restore(img)

	if g.St(0) != f.St(0) || g.St(1) != f.St(1) {
		t.Fatalf("restored ST values differ: got ST0=%v ST1=%v, want ST0=%v ST1=%v",
			g.St(0), g.St(1), f.St(0), f.St(1))
	}
	if g.Control != f.Control || g.Status != f.Status || g.Tag != f.Tag || g.Top != f.Top {
		t.Fatal("restored control/status/tag/top do not match the saved image")
	}
}

func TestFPUCloneIsIndependent(t *testing.T) {
	f := NewFPU()
	f.Push(1.0)
	c := f.Clone()
	c.Push(2.0)
	if f.Top == c.Top {
		t.Fatal("cloning must not let pushes on the clone affect the original")
	}
}

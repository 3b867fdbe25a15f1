package emu

import "testing"

func TestSchedulerRoundRobinFairness(t *testing.T) {
	s := NewScheduler()
	a := NewThread(0, false, false)
	b := NewThread(1, false, false)
	s.AddThread(a)
	s.AddThread(b)

	seen := map[int]int{}
	for i := 0; i < 4; i++ {
		if err := s.Select(); err != nil {
			t.Fatal(err)
		}
		seen[s.Current().ID]++
	}
	if seen[0] != 2 || seen[1] != 2 {
		t.Fatalf("expected even round-robin split, got %v", seen)
	}
}

func TestSchedulerSkipsSuspendedThread(t *testing.T) {
	s := NewScheduler()
	a := NewThread(0, false, false)
	b := NewThread(1, false, false)
	b.Suspended = true
	s.AddThread(a)
	s.AddThread(b)

	for i := 0; i < 3; i++ {
		if err := s.Select(); err != nil {
			t.Fatal(err)
		}
		if s.Current().ID != 0 {
			t.Fatalf("expected only thread 0 runnable, selected %d", s.Current().ID)
		}
	}
}

func TestSchedulerStarvedWithNoThreads(t *testing.T) {
	s := NewScheduler()
	if err := s.Select(); err == nil {
		t.Fatal("expected ErrSchedulerStarved with no threads")
	}
}

func TestSchedulerAdvancesTickWhenAllSleeping(t *testing.T) {
	s := NewScheduler()
	a := NewThread(0, false, false)
	s.AddThread(a)
	s.Sleep(a, 10)

	if err := s.Select(); err != nil {
		t.Fatal(err)
	}
	if s.Tick() != 10 {
		t.Fatalf("tick = %d, want 10 after advancing to the sole thread's wake tick", s.Tick())
	}
}

func TestCriticalSectionRecursiveAcquire(t *testing.T) {
	s := NewScheduler()
	a := NewThread(0, false, false)
	s.AddThread(a)

	s.EnterCriticalSection(1, a)
	s.EnterCriticalSection(1, a)
	if a.BlockedOnCS != nil {
		t.Fatal("owner re-entering its own critical section must not block")
	}

	s.LeaveCriticalSection(1, a)
	if cs := s.locks[1]; cs.owner != a.ID {
		t.Fatal("one Leave after two Enters must still hold the lock")
	}
	s.LeaveCriticalSection(1, a)
	if cs := s.locks[1]; cs.owner != -1 {
		t.Fatal("matching Leave count must release the lock")
	}
}

func TestCriticalSectionBlocksContendingThread(t *testing.T) {
	s := NewScheduler()
	a := NewThread(0, false, false)
	b := NewThread(1, false, false)
	s.AddThread(a)
	s.AddThread(b)

	s.EnterCriticalSection(1, a)
	s.EnterCriticalSection(1, b)
	if b.BlockedOnCS == nil || *b.BlockedOnCS != 1 {
		t.Fatal("contending thread must be marked blocked on the lock id")
	}

	s.LeaveCriticalSection(1, a)
	if b.BlockedOnCS != nil {
		t.Fatal("releasing the lock must wake the blocked thread")
	}
}

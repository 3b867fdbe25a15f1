package emu

// csState tracks ownership and recursion depth of one emulated critical
// section (spec.md §3 "Global Locks", §4.7 "Critical sections").
type csState struct {
	owner     int // thread ID, -1 if unowned
	recursion int
}

// Scheduler implements the cooperative round-robin policy of spec.md
// §4.7. Grounded on original_source/.../emu/execution.rs's
// step_multi_threaded selection loop and tick-advance-on-starvation
// behavior, generalized into a standalone component per spec.md §9's
// explicit-reference instruction (it owns its threads, tick and lock
// table, never reaching into a global).
type Scheduler struct {
	threads []*Thread
	current int
	tick    uint64

	locks map[uint32]*csState
}

func NewScheduler() *Scheduler {
	return &Scheduler{current: -1, locks: map[uint32]*csState{}}
}

func (s *Scheduler) AddThread(t *Thread) {
	s.threads = append(s.threads, t)
	if s.current == -1 {
		s.current = 0
	}
}

func (s *Scheduler) Current() *Thread {
	if s.current < 0 || s.current >= len(s.threads) {
		return nil
	}
	return s.threads[s.current]
}

func (s *Scheduler) Tick() uint64 { return s.tick }

func (s *Scheduler) Threads() []*Thread { return s.threads }

// Select implements spec.md §4.7's round-robin rule, fast-pathing the
// N=1 case.
func (s *Scheduler) Select() error {
	n := len(s.threads)
	if n == 0 {
		return &ErrSchedulerStarved{Tick: s.tick}
	}
	if n == 1 {
		if s.threads[0].Eligible(s.tick) {
			return nil
		}
		return s.advanceAndRetry()
	}

	start := (s.current + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if s.threads[idx].Eligible(s.tick) {
			s.current = idx
			return nil
		}
	}
	if s.threads[s.current].Eligible(s.tick) {
		return nil
	}
	return s.advanceAndRetry()
}

func (s *Scheduler) advanceAndRetry() error {
	var minWake uint64
	found := false
	for _, t := range s.threads {
		if t.Suspended {
			continue
		}
		if !found || t.WakeTick < minWake {
			minWake = t.WakeTick
			found = true
		}
	}
	if !found {
		return &ErrSchedulerStarved{Tick: s.tick}
	}
	s.tick = minWake
	for i, t := range s.threads {
		if t.Eligible(s.tick) {
			s.current = i
			return nil
		}
	}
	return &ErrSchedulerStarved{Tick: s.tick}
}

// Sleep parks the current thread until tick+delta.
func (s *Scheduler) Sleep(t *Thread, delta uint64) {
	t.WakeTick = s.tick + delta
}

// EnterCriticalSection implements spec.md §4.7 exactly, including
// recursive acquisition by the owner.
func (s *Scheduler) EnterCriticalSection(id uint32, t *Thread) {
	cs, ok := s.locks[id]
	if !ok {
		cs = &csState{owner: -1}
		s.locks[id] = cs
	}
	switch {
	case cs.owner == -1:
		cs.owner = t.ID
		cs.recursion = 1
	case cs.owner == t.ID:
		cs.recursion++
	default:
		idCopy := id
		t.BlockedOnCS = &idCopy
	}
}

// LeaveCriticalSection releases one recursion level; on last release it
// wakes every thread blocked on this lock id, matching spec.md
// §4.7 ("wake any thread whose blocked_on_cs = Some(id)").
func (s *Scheduler) LeaveCriticalSection(id uint32, t *Thread) {
	cs, ok := s.locks[id]
	if !ok || cs.owner != t.ID {
		return
	}
	cs.recursion--
	if cs.recursion > 0 {
		return
	}
	cs.owner = -1
	for _, other := range s.threads {
		if other.BlockedOnCS != nil && *other.BlockedOnCS == id {
			other.BlockedOnCS = nil
		}
	}
}

package schedule

import (
	"sync"
	"time"
)

// Slot holds at most one pending task. Scheduling replaces (and cancels)
// whatever was pending, and a replaced task never runs its callback even
// if its timer already fired.
type Slot struct {
	scheduler Scheduler

	mu   sync.Mutex
	gen  uint64
	task Task
}

func NewSlot(s Scheduler) *Slot {
	if s == nil {
		s = System()
	}
	return &Slot{scheduler: s}
}

// Schedule cancels the pending task and arranges for fn to run after d.
func (s *Slot) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Cancel()
	}
	s.gen++
	gen := s.gen
	s.task = s.scheduler.After(d, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.task = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}

func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

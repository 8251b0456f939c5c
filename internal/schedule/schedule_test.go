package schedule

import (
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualRunsInOrder(t *testing.T) {
	m := NewManual()
	var order []string

	m.After(3*time.Second, func() { order = append(order, "c") })
	m.After(1*time.Second, func() { order = append(order, "a") })
	m.After(1*time.Second, func() { order = append(order, "b") })

	m.Advance(500 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("tasks ran early: %v", order)
	}

	m.Advance(3 * time.Second)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("got %v, want %v", order, want)
	}
	if m.Now() != 3500*time.Millisecond {
		t.Errorf("Now() = %v, want 3.5s", m.Now())
	}
}

func TestManualCancel(t *testing.T) {
	m := NewManual()
	ran := false
	task := m.After(time.Second, func() { ran = true })

	if !task.Cancel() {
		t.Error("first Cancel should report true")
	}
	if task.Cancel() {
		t.Error("second Cancel should report false")
	}
	m.Advance(2 * time.Second)
	if ran {
		t.Error("cancelled task ran")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestManualChainedTasks(t *testing.T) {
	m := NewManual()
	var times []time.Duration

	var tick func()
	tick = func() {
		times = append(times, m.Now())
		if len(times) < 3 {
			m.After(2*time.Second, tick)
		}
	}
	m.After(time.Second, tick)

	m.Advance(10 * time.Second)
	want := []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}
	if !reflect.DeepEqual(times, want) {
		t.Errorf("got %v, want %v", times, want)
	}
}

func TestSlotReplacesPending(t *testing.T) {
	m := NewManual()
	slot := NewSlot(m)
	var fired []string

	slot.Schedule(time.Second, func() { fired = append(fired, "first") })
	slot.Schedule(2*time.Second, func() { fired = append(fired, "second") })

	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}

	m.Advance(5 * time.Second)
	if want := []string{"second"}; !reflect.DeepEqual(fired, want) {
		t.Errorf("got %v, want %v", fired, want)
	}
	if slot.Pending() {
		t.Error("slot should be empty after firing")
	}
}

func TestSlotCancel(t *testing.T) {
	m := NewManual()
	slot := NewSlot(m)
	ran := false

	slot.Schedule(time.Second, func() { ran = true })
	slot.Cancel()
	m.Advance(time.Second)

	if ran {
		t.Error("cancelled slot task ran")
	}
}

// a timer that fires after being replaced must not run its callback
type leakyScheduler struct {
	fns []func()
}

func (l *leakyScheduler) After(_ time.Duration, fn func()) Task {
	l.fns = append(l.fns, fn)
	return leakyTask{}
}

type leakyTask struct{}

func (leakyTask) Cancel() bool { return false }

func TestSlotIgnoresStaleFire(t *testing.T) {
	l := &leakyScheduler{}
	slot := NewSlot(l)
	var count atomic.Int32

	slot.Schedule(time.Second, func() { count.Add(1) })
	slot.Schedule(time.Second, func() { count.Add(10) })

	for _, fn := range l.fns {
		fn()
	}
	if got := count.Load(); got != 10 {
		t.Errorf("count = %d, want 10", got)
	}
}

func TestSystemScheduler(t *testing.T) {
	done := make(chan struct{})
	System().After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system task did not run")
	}

	task := System().After(time.Hour, func() {})
	if !task.Cancel() {
		t.Error("Cancel on pending system task should report true")
	}
}

package schedule

import (
	"sort"
	"sync"
	"time"
)

// handle to a pending callback
type Task interface {
	// Cancel stops the task. It reports false if the task already ran or
	// was cancelled.
	Cancel() bool
}

// runs callbacks after a delay
type Scheduler interface {
	After(d time.Duration, fn func()) Task
}

type systemScheduler struct{}

// wall-clock scheduler backed by time.AfterFunc
func System() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) After(d time.Duration, fn func()) Task {
	return systemTask{time.AfterFunc(d, fn)}
}

type systemTask struct {
	timer *time.Timer
}

func (t systemTask) Cancel() bool {
	return t.timer.Stop()
}

// Manual is a Scheduler whose clock only moves on Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	m        *Manual
	due      time.Duration
	seq      int
	fn       func()
	finished bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) After(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	task := &manualTask{m: m, due: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return task
}

func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.finished {
		return false
	}
	t.finished = true
	t.m.remove(t)
	return true
}

func (m *Manual) remove(task *manualTask) {
	for i, candidate := range m.tasks {
		if candidate == task {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d, running due tasks in order.
// Callbacks run without the lock held and may schedule further tasks;
// those also run if they fall due within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		task := m.nextDue(target)
		if task == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = task.due
		task.finished = true
		m.remove(task)
		m.mu.Unlock()

		task.fn()
	}
}

func (m *Manual) nextDue(target time.Duration) *manualTask {
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due != m.tasks[j].due {
			return m.tasks[i].due < m.tasks[j].due
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	if m.tasks[0].due > target {
		return nil
	}
	return m.tasks[0]
}

// number of tasks waiting to run
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// elapsed manual time
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

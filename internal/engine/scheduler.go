package engine

import (
	"sort"
	"time"
)

// Scheduler runs deferred tasks against a virtual clock. The clock only moves
// when Advance is called from the tick loop, so a paused simulation freezes
// every pending deadline. Not safe for concurrent use; it belongs to the tick
// goroutine.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	tasks []*Task
}

// Task is a handle to one scheduled callback.
type Task struct {
	seq   uint64
	due   time.Duration
	fn    func()
	state taskState
}

type taskState uint8

const (
	taskPending taskState = iota
	taskFired
	taskCancelled
)

// NewScheduler returns a scheduler whose clock starts at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After schedules fn to run once the clock has advanced by d.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &Task{seq: s.seq, due: s.now + d, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock forward by d and runs every task that came due,
// in deadline order. Tasks scheduled by a callback run on a later Advance.
// Returns the number of tasks run.
func (s *Scheduler) Advance(d time.Duration) int {
	if d > 0 {
		s.now += d
	}

	var due []*Task
	keep := s.tasks[:0]
	for _, t := range s.tasks {
		switch {
		case t.state != taskPending:
		case t.due <= s.now:
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	for i := len(keep); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = keep

	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})

	ran := 0
	for _, t := range due {
		// An earlier callback may have cancelled this one.
		if t.state != taskPending {
			continue
		}
		t.state = taskFired
		t.fn()
		ran++
	}
	return ran
}

// Pending returns the number of tasks waiting to run.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if t.state == taskPending {
			n++
		}
	}
	return n
}

// Cancel stops the task from running. It reports whether the task was still
// pending.
func (t *Task) Cancel() bool {
	if t == nil || t.state != taskPending {
		return false
	}
	t.state = taskCancelled
	return true
}

// Pending reports whether the task has neither run nor been cancelled.
func (t *Task) Pending() bool {
	return t != nil && t.state == taskPending
}

// Due returns the virtual time at which the task runs.
func (t *Task) Due() time.Duration {
	return t.due
}

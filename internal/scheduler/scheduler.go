// Package scheduler keeps the set of timed callbacks fired by the manager loop.
package scheduler

import (
	"cmp"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

// PanicError is returned by Tick when a task callback panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scheduler: task panicked: %v", e.Value)
}

// Task is a scheduled callback.
type Task struct {
	s        *Scheduler
	seq      uint64
	target   time.Time
	period   time.Duration
	interval bool
	fn       func()
}

// Cancel removes the task. Cancelling twice is harmless.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.s.Remove(t)
}

// Interval reports whether the task repeats.
func (t *Task) Interval() bool {
	return t.interval
}

// Scheduler is safe for concurrent use. Callbacks run on the goroutine calling Tick.
type Scheduler struct {
	mu    sync.Mutex
	now   func() time.Time
	seq   uint64
	tasks map[*Task]struct{}
}

// New creates a scheduler reading time from now, or time.Now when nil.
func New(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now, tasks: make(map[*Task]struct{})}
}

// SetTimeout runs fn once, at the first tick at least d from now.
func (s *Scheduler) SetTimeout(d time.Duration, fn func()) *Task {
	return s.add(d, false, fn)
}

// SetInterval runs fn at the first tick at least every d.
func (s *Scheduler) SetInterval(d time.Duration, fn func()) *Task {
	return s.add(d, true, fn)
}

func (s *Scheduler) add(d time.Duration, interval bool, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &Task{
		s:        s,
		seq:      s.seq,
		target:   s.now().Add(d),
		period:   d,
		interval: interval,
		fn:       fn,
	}
	s.tasks[t] = struct{}{}
	return t
}

// Remove cancels t.
func (s *Scheduler) Remove(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Clear cancels every task.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	clear(s.tasks)
	s.mu.Unlock()
}

// Tick fires every task due at now, oldest target first.
// If a callback panics the remaining due tasks are skipped and the
// panic is returned as a *PanicError.
func (s *Scheduler) Tick(now time.Time) error {
	s.mu.Lock()
	var due []*Task
	for t := range s.tasks {
		if !t.target.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(due, func(a, b *Task) int {
		if c := a.target.Compare(b.target); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	for _, t := range due {
		s.mu.Lock()
		_, live := s.tasks[t]
		if live {
			if t.interval {
				t.target = now.Add(t.period)
			} else {
				delete(s.tasks, t)
			}
		}
		s.mu.Unlock()

		// An earlier callback in this tick may have cancelled it.
		if !live {
			continue
		}
		if err := run(t.fn); err != nil {
			return err
		}
	}
	return nil
}

func run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

package scheduler

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// TestTimeoutFiresOnce tests one-shot tasks
func TestTimeoutFiresOnce(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	calls := 0
	s.SetTimeout(time.Second, func() { calls++ })

	if err := s.Tick(epoch.Add(500 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("fired early: calls = %d", calls)
	}

	s.Tick(epoch.Add(time.Second))
	s.Tick(epoch.Add(5 * time.Second))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

// TestIntervalReschedules tests that interval tasks fire relative to the tick that ran them
func TestIntervalReschedules(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	calls := 0
	task := s.SetInterval(20*time.Second, func() { calls++ })

	for _, at := range []time.Duration{10, 20, 30, 41, 60} {
		s.Tick(epoch.Add(at * time.Second))
	}
	// fires at 20 and 41, next due at 61
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	task.Cancel()
	s.Tick(epoch.Add(time.Hour))
	if calls != 2 {
		t.Errorf("cancelled interval fired: calls = %d", calls)
	}
	task.Cancel()
}

// TestTickOrder tests that due tasks run oldest target first
func TestTickOrder(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	var order []string
	s.SetTimeout(3*time.Second, func() { order = append(order, "c") })
	s.SetTimeout(1*time.Second, func() { order = append(order, "a") })
	s.SetTimeout(2*time.Second, func() { order = append(order, "b") })
	s.SetTimeout(2*time.Second, func() { order = append(order, "b2") })

	s.Tick(epoch.Add(time.Minute))
	if want := []string{"a", "b", "b2", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// TestCancelDuringTick tests that a callback can cancel a later due task
func TestCancelDuringTick(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	var second *Task
	fired := false
	s.SetTimeout(time.Second, func() { second.Cancel() })
	second = s.SetTimeout(2*time.Second, func() { fired = true })

	s.Tick(epoch.Add(time.Minute))
	if fired {
		t.Error("cancelled task fired")
	}
}

// TestScheduleFromCallback tests that a callback may add tasks without deadlocking
func TestScheduleFromCallback(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	fired := false
	s.SetTimeout(0, func() {
		s.SetTimeout(0, func() { fired = true })
	})

	s.Tick(epoch)
	if fired {
		t.Error("task added during a tick should wait for the next one")
	}
	s.Tick(epoch)
	if !fired {
		t.Error("task added during a tick never fired")
	}
}

// TestPanicStopsTick tests the fail-fast path
func TestPanicStopsTick(t *testing.T) {
	t.Parallel()

	c := &clock{t: epoch}
	s := New(c.now)

	after := false
	s.SetTimeout(time.Second, func() { panic("boom") })
	s.SetTimeout(2*time.Second, func() { after = true })

	err := s.Tick(epoch.Add(time.Minute))
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Tick() error = %v, want *PanicError", err)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %v", pe)
	}
	if after {
		t.Error("tasks after the panic should not run")
	}
}

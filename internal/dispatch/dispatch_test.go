package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduleRunsAfterDelay(t *testing.T) {
	d := New()
	defer d.Stop()

	var ran atomic.Int32
	d.Schedule("data", 5*time.Millisecond, func() { ran.Add(1) })

	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
}

// Two schedules on the same channel within the debounce window must produce
// exactly one execution, with the second call's arguments.
func TestSupersede(t *testing.T) {
	d := New()
	defer d.Stop()

	var mu sync.Mutex
	var got []int
	record := func(v int) func() {
		return func() {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}
	}

	d.Schedule("viewport", 30*time.Millisecond, record(1))
	d.Schedule("viewport", 30*time.Millisecond, record(2))

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected exactly one run with the superseding task, got %v", got)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	d := New()
	defer d.Stop()

	var clicks, moves atomic.Int32
	d.Schedule("click", 5*time.Millisecond, func() { clicks.Add(1) })
	d.Schedule("viewport", 5*time.Millisecond, func() { moves.Add(1) })

	waitFor(t, time.Second, func() bool { return clicks.Load() == 1 && moves.Load() == 1 })
}

// A burst of schedules on one channel must not delay another channel's task.
func TestBusyChannelDoesNotBlockOthers(t *testing.T) {
	d := New()
	defer d.Stop()

	var ran atomic.Int32
	d.Schedule("click", 10*time.Millisecond, func() { ran.Add(1) })

	stop := time.Now().Add(60 * time.Millisecond)
	for time.Now().Before(stop) {
		d.Schedule("viewport", 40*time.Millisecond, func() {})
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
}

// Tasks on different channels run in deadline order, not schedule order.
func TestExpiryOrdering(t *testing.T) {
	d := New()
	defer d.Stop()

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	d.Schedule("slow", 80*time.Millisecond, record("slow"))
	d.Schedule("fast", 10*time.Millisecond, record("fast"))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "fast" || order[1] != "slow" {
		t.Fatalf("expected expiry order [fast slow], got %v", order)
	}
}

func TestReschedulePushesDeadline(t *testing.T) {
	d := New()
	defer d.Stop()

	var ran atomic.Int32
	start := time.Now()
	d.Schedule("data", 20*time.Millisecond, func() { ran.Add(1) })
	time.Sleep(10 * time.Millisecond)
	d.Schedule("data", 40*time.Millisecond, func() { ran.Add(1) })

	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("task ran after %v, rescheduling should push quiescence out past 50ms", elapsed)
	}
}

func TestStopDiscardsPending(t *testing.T) {
	d := New()

	var ran atomic.Int32
	d.Schedule("data", 50*time.Millisecond, func() { ran.Add(1) })
	d.Stop()
	time.Sleep(80 * time.Millisecond)

	if ran.Load() != 0 {
		t.Error("pending task should be discarded on Stop")
	}
}

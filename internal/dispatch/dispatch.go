// Package dispatch coalesces bursts of input events into trailing-edge
// recomputation tasks, one pending slot per logical channel.
package dispatch

import (
	"sync"
	"time"
)

// Dispatcher runs debounced tasks on a single executor goroutine. Scheduling
// a task on a channel supersedes any pending task on that channel: within an
// overlapping window only the last scheduled task runs, after at least the
// requested quiescence delay. Channels are independent; tasks from different
// channels run in the order their delays expire, ties resolved by schedule
// order. Tasks run to completion, one at a time.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]*pendingTask
	seq     uint64

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type pendingTask struct {
	due  time.Time
	seq  uint64
	task func()
}

// New creates a dispatcher and starts its executor goroutine.
func New() *Dispatcher {
	d := &Dispatcher{
		pending: make(map[string]*pendingTask),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Schedule queues task to run on channel after delay of channel quiescence.
// A task already pending on the channel is dropped silently; dropping
// superseded work is the normal debounce path, never a failure.
func (d *Dispatcher) Schedule(channel string, delay time.Duration, task func()) {
	d.mu.Lock()
	d.seq++
	d.pending[channel] = &pendingTask{
		due:  time.Now().Add(delay),
		seq:  d.seq,
		task: task,
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop shuts the executor down. Pending tasks that have not fired are
// discarded; a task already running completes first.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		d.mu.Lock()
		ch, pt := d.earliestLocked()
		d.mu.Unlock()

		if pt == nil {
			select {
			case <-d.wake:
				continue
			case <-d.stopCh:
				return
			}
		}

		if wait := time.Until(pt.due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-d.wake:
				// A newer schedule may have changed the earliest task.
				if !timer.Stop() {
					<-timer.C
				}
			case <-d.stopCh:
				if !timer.Stop() {
					<-timer.C
				}
				return
			}
			continue
		}

		// Re-check under the lock: the slot may have been superseded with a
		// later deadline since we looked.
		d.mu.Lock()
		cur, ok := d.pending[ch]
		if !ok || cur.due.After(time.Now()) {
			d.mu.Unlock()
			continue
		}
		delete(d.pending, ch)
		d.mu.Unlock()

		cur.task()
	}
}

// earliestLocked returns the pending task with the earliest deadline,
// breaking ties by schedule order. Caller holds d.mu.
func (d *Dispatcher) earliestLocked() (string, *pendingTask) {
	var bestCh string
	var best *pendingTask
	for ch, pt := range d.pending {
		if best == nil || pt.due.Before(best.due) || (pt.due.Equal(best.due) && pt.seq < best.seq) {
			bestCh, best = ch, pt
		}
	}
	return bestCh, best
}

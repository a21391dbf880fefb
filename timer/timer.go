// Package timer implements the single re-armable deadline wheel
// described in spec §4.3. It is lifted almost directly from the
// teacher's p2p/discover/udp.go loop()/resetTimeout pattern: a
// container/list ordered by deadline, driven by one time.Timer that is
// only ever re-armed to the earliest pending deadline.
package timer

import (
	"container/list"
	"sync"
	"time"

	"github.com/MOACChain/knode/klog"
)

// Callback is invoked when its scheduled deadline is reached.
type Callback func()

// entry is one scheduled callback in the wheel.
type entry struct {
	deadline time.Time
	cb       Callback
	canceled bool
}

// Cancellation lets a caller cancel a scheduled callback before it
// fires. Cancelling an already-fired or already-cancelled entry is a
// silent no-op, per spec: "a cancelled wait must silently do nothing."
type Cancellation struct {
	wheel *Wheel
	el    *list.Element
}

// Cancel prevents the associated callback from firing.
func (c Cancellation) Cancel() {
	if c.wheel == nil || c.el == nil {
		return
	}
	c.wheel.cancel(c.el)
}

// Wheel is a priority queue keyed by absolute deadline, holding
// callbacks, driven by one re-armable asynchronous timer.
type Wheel struct {
	mu      sync.Mutex
	entries *list.List // ordered ascending by deadline
	timer   *time.Timer
	armedAt time.Time
	armed   bool
	closed  bool
	log     *klog.Logger
}

// New creates an idle Wheel. It does not start any goroutine or timer
// until the first entry is scheduled.
func New(log *klog.Logger) *Wheel {
	if log == nil {
		log = klog.Nop()
	}
	return &Wheel{entries: list.New(), log: log}
}

// Schedule arranges for cb to run at or after deadline. The returned
// Cancellation can be used to cancel it first. Scheduling after the
// wheel has been Closed is a no-op; the returned Cancellation does
// nothing.
func (w *Wheel) Schedule(deadline time.Time, cb Callback) Cancellation {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return Cancellation{}
	}

	e := &entry{deadline: deadline, cb: cb}
	el := w.insertLocked(e)
	w.rearmLocked()
	return Cancellation{wheel: w, el: el}
}

// insertLocked inserts e into entries keeping ascending deadline order.
func (w *Wheel) insertLocked(e *entry) *list.Element {
	for el := w.entries.Front(); el != nil; el = el.Next() {
		if e.deadline.Before(el.Value.(*entry).deadline) {
			return w.entries.InsertBefore(e, el)
		}
	}
	return w.entries.PushBack(e)
}

func (w *Wheel) cancel(el *list.Element) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := el.Value.(*entry)
	if !ok || e.canceled {
		return
	}
	e.canceled = true
}

// rearmLocked re-arms the underlying timer to the earliest
// non-canceled deadline, cancelling any previous arm first. Must be
// called with w.mu held.
func (w *Wheel) rearmLocked() {
	var next *entry
	for el := w.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.canceled {
			next = e
			break
		}
	}
	if next == nil {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.armed = false
		return
	}
	if w.armed && next.deadline.Equal(w.armedAt) {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	d := time.Until(next.deadline)
	if d < 0 {
		d = 0
	}
	w.armedAt = next.deadline
	w.armed = true
	w.timer = time.AfterFunc(d, w.fire)
}

// fire runs whenever the underlying timer elapses. It invokes every
// entry whose deadline has passed, in deadline order, removes them,
// and re-arms for whatever remains.
func (w *Wheel) fire() {
	w.mu.Lock()
	now := time.Now()
	var due []Callback
	for el := w.entries.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.canceled {
			w.entries.Remove(el)
			el = next
			continue
		}
		if e.deadline.After(now) {
			break
		}
		due = append(due, e.cb)
		w.entries.Remove(el)
		el = next
	}
	w.armed = false
	w.rearmLocked()
	w.mu.Unlock()

	for _, cb := range due {
		if cb != nil {
			cb()
		}
	}
}

// Close stops the underlying timer and discards all pending entries
// without invoking them. Safe to call more than once.
func (w *Wheel) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.entries.Init()
}

// Pending returns the number of entries still scheduled (including
// canceled-but-not-yet-swept ones); mainly useful in tests.
func (w *Wheel) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Len()
}

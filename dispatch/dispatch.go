// Package dispatch implements the response dispatcher described in
// spec §4.4: a table of outstanding requests keyed by correlation
// token, each with a deadline tracked by the timer package. Exactly one
// of OnResponse/OnError fires per registered token, never both, and
// never more than once.
package dispatch

import (
	"sync"
	"time"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/timer"
)

// OnResponse is invoked, at most once, when Deliver is called with the
// matching token before the deadline.
type OnResponse func(body interface{})

// OnError is invoked, at most once, when the deadline elapses before
// Deliver is called, or when Close tears down the dispatcher with
// outstanding entries.
type OnError func(err error)

type waiter struct {
	onResponse OnResponse
	onError    OnError
	cancel     timer.Cancellation
	done       bool
}

// Dispatcher correlates outbound requests with their inbound replies by
// a random per-request id.Id160 token.
type Dispatcher struct {
	mu      sync.Mutex
	waiters map[id.Id160]*waiter
	wheel   *timer.Wheel
	closed  bool
	log     *klog.Logger
}

// New creates a Dispatcher driven by wheel. wheel is owned by the
// caller (typically shared with the rest of the engine) and is not
// closed by the Dispatcher.
func New(wheel *timer.Wheel, log *klog.Logger) *Dispatcher {
	if log == nil {
		log = klog.Nop()
	}
	return &Dispatcher{
		waiters: make(map[id.Id160]*waiter),
		wheel:   wheel,
		log:     log,
	}
}

// Register arranges for onResponse to be called if Deliver(token, ...)
// happens within timeout, or onError(errs.ErrTimeout) otherwise. It
// returns errs.ErrClosed if the dispatcher has been closed.
func (d *Dispatcher) Register(token id.Id160, timeout time.Duration, onResponse OnResponse, onError OnError) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errs.ErrClosed
	}
	if _, exists := d.waiters[token]; exists {
		d.mu.Unlock()
		return errs.ErrUnassociatedToken
	}
	w := &waiter{onResponse: onResponse, onError: onError}
	d.waiters[token] = w
	d.mu.Unlock()

	w.cancel = d.wheel.Schedule(time.Now().Add(timeout), func() {
		d.expire(token)
	})
	return nil
}

// Deliver matches an inbound message's token against a registered
// waiter and invokes its OnResponse exactly once. It reports whether a
// waiter was found; a false result means the response arrived for an
// unassociated token (already timed out, already delivered, or never
// registered) and must be silently dropped per spec §4.4.
func (d *Dispatcher) Deliver(token id.Id160, body interface{}) bool {
	w := d.takeWaiter(token)
	if w == nil {
		return false
	}
	w.cancel.Cancel()
	if w.onResponse != nil {
		w.onResponse(body)
	}
	return true
}

// expire runs on the timer wheel's goroutine when a registration's
// deadline passes without a matching Deliver.
func (d *Dispatcher) expire(token id.Id160) {
	w := d.takeWaiter(token)
	if w == nil {
		return
	}
	if w.onError != nil {
		w.onError(errs.ErrTimeout)
	}
}

func (d *Dispatcher) takeWaiter(token id.Id160) *waiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.waiters[token]
	if !ok || w.done {
		return nil
	}
	w.done = true
	delete(d.waiters, token)
	return w
}

// Pending reports how many requests are currently outstanding.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// Close tears down the dispatcher, invoking OnError(errs.ErrClosed) on
// every outstanding waiter and cancelling its timer entry. Safe to call
// more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	waiters := d.waiters
	d.waiters = make(map[id.Id160]*waiter)
	d.mu.Unlock()

	for _, w := range waiters {
		w.cancel.Cancel()
		if w.onError != nil {
			w.onError(errs.ErrClosed)
		}
	}
}

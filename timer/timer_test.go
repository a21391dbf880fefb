package timer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MOACChain/knode/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiresInDeadlineOrder(t *testing.T) {
	w := timer.New(nil)
	defer w.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	now := time.Now()
	w.Schedule(now.Add(60*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})
	w.Schedule(now.Add(20*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	w.Schedule(now.Add(100*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 3)
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestNearerDeadlineFiresBeforePending(t *testing.T) {
	w := timer.New(nil)
	defer w.Close()

	done := make(chan int, 2)
	w.Schedule(time.Now().Add(200*time.Millisecond), func() { done <- 1 })
	w.Schedule(time.Now().Add(10*time.Millisecond), func() { done <- 2 })

	first := <-done
	assert.Equal(t, 2, first)
}

func TestCancelSuppressesCallback(t *testing.T) {
	w := timer.New(nil)
	defer w.Close()

	fired := make(chan struct{}, 1)
	c := w.Schedule(time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	c.Cancel()

	// Schedule a sentinel a bit later; if the canceled entry had fired
	// it would have already sent on fired by the time this one runs.
	sentinel := make(chan struct{})
	w.Schedule(time.Now().Add(60*time.Millisecond), func() { close(sentinel) })
	<-sentinel

	select {
	case <-fired:
		t.Fatal("canceled callback fired")
	default:
	}
}

func TestDoubleCancelIsNoop(t *testing.T) {
	w := timer.New(nil)
	defer w.Close()
	c := w.Schedule(time.Now().Add(10*time.Millisecond), func() {})
	c.Cancel()
	require.NotPanics(t, func() { c.Cancel() })
}

func TestCloseDiscardsPending(t *testing.T) {
	w := timer.New(nil)
	fired := make(chan struct{}, 1)
	w.Schedule(time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	w.Close()

	select {
	case <-fired:
		t.Fatal("callback fired after Close")
	case <-time.After(60 * time.Millisecond):
	}
}

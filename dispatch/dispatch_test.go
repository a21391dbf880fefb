package dispatch_test

import (
	"testing"
	"time"

	"github.com/MOACChain/knode/dispatch"
	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*dispatch.Dispatcher, *timer.Wheel) {
	w := timer.New(nil)
	t.Cleanup(w.Close)
	return dispatch.New(w, nil), w
}

func TestDeliverInvokesOnResponseExactlyOnce(t *testing.T) {
	d, _ := newDispatcher(t)
	tok := id.Random()

	calls := 0
	require.NoError(t, d.Register(tok, 2*time.Second, func(body interface{}) {
		calls++
	}, func(err error) {
		t.Fatal("onError should not be called")
	}))

	require.True(t, d.Deliver(tok, "pong"))
	require.False(t, d.Deliver(tok, "pong-again"))
	assert.Equal(t, 1, calls)
}

func TestUnassociatedTokenDeliverIsNoop(t *testing.T) {
	d, _ := newDispatcher(t)
	assert.False(t, d.Deliver(id.Random(), "whatever"))
}

func TestTimeoutInvokesOnError(t *testing.T) {
	d, _ := newDispatcher(t)
	tok := id.Random()
	done := make(chan error, 1)

	require.NoError(t, d.Register(tok, 20*time.Millisecond, func(body interface{}) {
		t.Fatal("onResponse should not be called")
	}, func(err error) {
		done <- err
	}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errs.ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("onError never invoked")
	}
	assert.False(t, d.Deliver(tok, "late"))
}

func TestCloseErrorsOutstandingWaiters(t *testing.T) {
	d, _ := newDispatcher(t)
	tok := id.Random()
	done := make(chan error, 1)
	require.NoError(t, d.Register(tok, 5*time.Second, nil, func(err error) { done <- err }))

	d.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errs.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("onError never invoked on close")
	}

	assert.Equal(t, errs.ErrClosed, d.Register(id.Random(), time.Second, nil, nil))
}

func TestRegisterDuplicateTokenRejected(t *testing.T) {
	d, _ := newDispatcher(t)
	tok := id.Random()
	require.NoError(t, d.Register(tok, time.Second, nil, nil))
	err := d.Register(tok, time.Second, nil, nil)
	assert.ErrorIs(t, err, errs.ErrUnassociatedToken)
}

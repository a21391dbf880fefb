package netio_test

import (
	"testing"
	"time"

	"github.com/MOACChain/knode/netio"
	"github.com/stretchr/testify/require"
)

func TestSendAndReceiveRoundTrip(t *testing.T) {
	a, err := netio.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer a.Close()

	b, err := netio.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(b.LocalAddr(), []byte("hello")))

	select {
	case pkt := <-b.Packets():
		require.Equal(t, "hello", string(pkt.Data))
		require.Equal(t, a.LocalAddr().Port, pkt.From.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestClosePendingReadUnblocksPacketsChannel(t *testing.T) {
	a, err := netio.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	select {
	case _, ok := <-a.Packets():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("packets channel never closed")
	}
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	a, err := netio.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := netio.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer b.Close()

	big := make([]byte, 2000)
	err = a.Send(b.LocalAddr(), big)
	require.Error(t, err)
}

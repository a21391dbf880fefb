package display_test

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MOACChain/knode/cmd/knode/display"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/routing"
)

func TestWriteBucketsDoesNotPanicOnPopulatedTable(t *testing.T) {
	table := routing.New(id.Random(), netio.Endpoint{}, nil)
	for i := 0; i < 5; i++ {
		table.AddPeer(node.New(id.Random(), netio.Endpoint{IP: net.ParseIP("127.0.0.1"), Port: uint16(30000 + i)}))
	}

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, r)
		close(done)
	}()

	display.WriteBuckets(w, table)
	w.Close()
	<-done
}

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/MOACChain/knode/engine"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New("127.0.0.1:0", id.Random(), nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestStoreThenFindValueRoundTrip(t *testing.T) {
	holder := newEngine(t)
	client := newEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Ping(ctx, holder.LocalAddr()))

	holder.AddBootstrapNode(node.New(client.Self(), client.LocalAddr()))
	client.AddBootstrapNode(node.New(holder.Self(), holder.LocalAddr()))

	key := id.Random()
	require.NoError(t, client.StoreValue(ctx, key, []byte("value")))

	val, _, err := holder.FindValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "value", string(val))
}

// TestFindValueFallsBackToNeighborsAcrossAHop verifies that a FIND_VALUE
// query reaches a value holder the querying node only knows about
// transitively, through an intermediate peer that replies with its own
// neighbor list (a FindNodeResp) rather than the value, since it does
// not hold the key itself.
func TestFindValueFallsBackToNeighborsAcrossAHop(t *testing.T) {
	holder := newEngine(t)
	relay := newEngine(t)
	client := newEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, relay.Ping(ctx, holder.LocalAddr()))
	relay.AddBootstrapNode(node.New(holder.Self(), holder.LocalAddr()))
	holder.AddBootstrapNode(node.New(relay.Self(), relay.LocalAddr()))

	// client only knows about relay, never talks to holder directly.
	client.AddBootstrapNode(node.New(relay.Self(), relay.LocalAddr()))

	key := id.Random()
	holder.Store().Put(key, []byte("relayed"))

	val, _, err := client.FindValue(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "relayed", string(val))
}

func TestHandleLearnsSenderIntoRoutingTable(t *testing.T) {
	a := newEngine(t)
	b := newEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.Ping(ctx, b.LocalAddr()))

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) && b.RoutingTable().NodesCount() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Greater(t, b.RoutingTable().NodesCount(), 0)
}

func TestBootstrapPopulatesFromSeed(t *testing.T) {
	seedEngine := newEngine(t)
	joiner := newEngine(t)

	seedNode := node.New(seedEngine.Self(), seedEngine.LocalAddr())
	joiner.AddBootstrapNode(seedNode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	joiner.Start(ctx)

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) && joiner.RoutingTable().NodesCount() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Greater(t, joiner.RoutingTable().NodesCount(), 0)
}

func TestFindNodeAgainstPeerWithNoNeighbors(t *testing.T) {
	a := newEngine(t)
	b := newEngine(t)
	a.AddBootstrapNode(node.New(b.Self(), b.LocalAddr()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	found := a.FindNode(ctx, id.Random())
	var ids []id.Id160
	for _, n := range found {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, b.Self())
}

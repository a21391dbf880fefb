package routing_test

import (
	"net"
	"testing"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/params"
	"github.com/MOACChain/knode/routing"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode() *node.Node {
	return node.New(id.Random(), netio.Endpoint{IP: net.ParseIP("10.0.0.1"), Port: 30310})
}

func TestAddPeerIgnoresSelf(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	n := node.New(self, netio.Endpoint{IP: net.ParseIP("1.2.3.4"), Port: 1})
	assert.True(t, tbl.AddPeer(n))
	assert.Equal(t, 0, tbl.NodesCount())
}

// TestAddPeerIgnoresSelfByEndpoint verifies the other half of spec
// §4.7's self-exclusion rule: a peer reported under a different id but
// the same endpoint as self is still recognized as self, not added.
func TestAddPeerIgnoresSelfByEndpoint(t *testing.T) {
	self := id.Random()
	selfAddr := netio.Endpoint{IP: net.ParseIP("1.2.3.4"), Port: 30310}
	tbl := routing.New(self, selfAddr, nil)

	n := node.New(id.Random(), selfAddr)
	assert.True(t, tbl.AddPeer(n))
	assert.Equal(t, 0, tbl.NodesCount())
}

func TestAddPeerFillsSingleBucketBeforeSplitting(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	for i := 0; i < params.K; i++ {
		require.True(t, tbl.AddPeer(newNode()))
	}
	assert.Equal(t, params.K, tbl.NodesCount())
}

func TestAddPeerBeyondCapacitySplitsBucketContainingSelf(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	// Fill well past one bucket's capacity; since every random node
	// falls in the same (initially only) bucket which always contains
	// our own id, it must keep splitting rather than overflow into
	// replacements.
	for i := 0; i < params.K*4; i++ {
		tbl.AddPeer(newNode())
	}
	assert.True(t, tbl.BucketsCount() > 1)
}

func TestFindNeighborsExcludesQueriedIDAndOrdersByDistance(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	var added []*node.Node
	for i := 0; i < params.K; i++ {
		n := newNode()
		added = append(added, n)
		tbl.AddPeer(n)
	}

	target := added[0].ID
	neighbors := tbl.FindNeighbors(target, params.K)
	for _, n := range neighbors {
		assert.False(t, n.ID.Equal(target))
	}
	for i := 1; i < len(neighbors); i++ {
		d1 := neighbors[i-1].ID.Xor(target)
		d2 := neighbors[i].ID.Xor(target)
		if d2.Less(d1) {
			t.Fatalf("neighbors not sorted by distance to target; dump:\n%s", spew.Sdump(neighbors))
		}
	}
}

func TestPeerTimedOutEvictsAfterThreshold(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	n := newNode()
	tbl.AddPeer(n)

	for i := 0; i < params.NodeFailedCommsBeforeStale-1; i++ {
		assert.False(t, tbl.PeerTimedOut(n))
	}
	assert.True(t, tbl.PeerTimedOut(n))
	assert.Equal(t, 0, tbl.NodesCount())
}

// TestSelfBucketKeepsSplittingRegardlessOfSelfBit guards against a
// regression where the bucket containing self ends up at a
// non-last index whenever self's id has bit=0 at a split point: that
// would make canSplitLocked's bucketHasSelf check fail for the real
// self-bucket and permanently cap it at K nodes. Run across many
// random self ids so the bit=0 case is exercised with high probability.
func TestSelfBucketKeepsSplittingRegardlessOfSelfBit(t *testing.T) {
	for trial := 0; trial < 8; trial++ {
		self := id.Random()
		tbl := routing.New(self, netio.Endpoint{}, nil)
		for i := 0; i < params.K*6; i++ {
			tbl.AddPeer(newNode())
		}
		require.True(t, tbl.BucketsCount() > 1, "trial %d: self bucket never split past one bucket", trial)
		require.Equal(t, tbl.BucketsCount()-1, tbl.BucketIndexFor(self),
			"trial %d: self's bucket must stay the last bucket for splitting to keep working", trial)
	}
}

func TestRemovePeer(t *testing.T) {
	self := id.Random()
	tbl := routing.New(self, netio.Endpoint{}, nil)
	n := newNode()
	tbl.AddPeer(n)
	require.Equal(t, 1, tbl.NodesCount())
	tbl.RemovePeer(n.ID)
	assert.Equal(t, 0, tbl.NodesCount())
}

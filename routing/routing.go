// Package routing implements the Kademlia routing table (spec §3.2-3.3):
// an ordered sequence of k-buckets covering the whole 160-bit keyspace,
// split on demand per the Section 4.2 accelerated-lookup rule. Grounded
// on the original engine's RoutingTable (p2p/kademlia/routing.h/.cpp),
// adapted from its std::deque<KBucket> to a Go slice in which each split
// puts the half that covers our own id right after the other half, so
// the last bucket always covers our own id, with the kbucket package's
// split already doing the two-way node redistribution.
package routing

import (
	"sync"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/kbucket"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/params"
)

// Table is the routing table for one local node.
type Table struct {
	mu      sync.Mutex
	self    *node.Node // id + endpoint, for the full spec §3.1 equality test
	buckets []*kbucket.KBucket // in split order, not prefix order; last covers self
	log     *klog.Logger
}

// New creates a routing table for the given local node id and endpoint,
// starting with a single bucket covering the whole keyspace. selfAddr
// may be the zero Endpoint if the table is built offline (e.g.
// bucket-dump) without a bound socket; self-exclusion then falls back
// to id-only matching.
func New(self id.Id160, selfAddr netio.Endpoint, log *klog.Logger) *Table {
	if log == nil {
		log = klog.Nop()
	}
	return &Table{
		self:    node.New(self, selfAddr),
		buckets: []*kbucket.KBucket{kbucket.New(0, id.Id160{}, 0)},
		log:     log,
	}
}

// Self returns the local node id this table is rooted at.
func (t *Table) Self() id.Id160 { return t.self.ID }

// NodesCount returns the total number of live (non-replacement) nodes
// across all buckets.
func (t *Table) NodesCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, b := range t.buckets {
		live, _ := b.Size()
		total += live
	}
	return total
}

// BucketsCount returns the number of buckets currently in the table.
func (t *Table) BucketsCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// Empty reports whether the table holds no live nodes at all.
func (t *Table) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.buckets {
		if !b.Empty() {
			return false
		}
	}
	return true
}

// bucketIndexForLocked returns the index of the bucket that covers
// nodeID, per the "min(logdistance, len(buckets)-1)" rule described in
// the teacher's GetBucketIndexFor: walk buckets low-to-high and return
// the first one whose range contains the id, falling back to the last
// bucket (ours) if somehow none matched.
func (t *Table) bucketIndexForLocked(nodeID id.Id160) int {
	for i, b := range t.buckets {
		if b.CanHold(nodeID) {
			return i
		}
	}
	return len(t.buckets) - 1
}

// BucketIndexFor exposes bucketIndexForLocked for callers (e.g. the
// engine's handling of an inbound request's sender) that need to know
// which bucket an id falls into.
func (t *Table) BucketIndexFor(nodeID id.Id160) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bucketIndexForLocked(nodeID)
}

// Buckets returns a snapshot slice of the table's buckets in the
// table's own order (the bucket covering our own id last). Used by the
// refresh scheduler and diagnostics.
func (t *Table) Buckets() []*kbucket.KBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*kbucket.KBucket, len(t.buckets))
	copy(out, t.buckets)
	return out
}

// AddPeer adds peer to its appropriate bucket, splitting that bucket
// first if the Section 4.2 rule permits it. Reports true if the peer
// ended up live in a bucket, false if it was placed in a replacement
// cache instead.
func (t *Table) AddPeer(n *node.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n.Equal(t.self) {
		t.log.Debugf("ignoring attempt to add our own node to the routing table")
		return true
	}

	idx := t.bucketIndexForLocked(n.ID)
	bucket := t.buckets[idx]
	if bucket.AddNode(n) {
		return true
	}

	if !t.canSplitLocked(idx) {
		return false
	}

	other, selfHalf := bucket.Split(t.self.ID)
	t.buckets[idx] = other
	t.buckets = append(t.buckets, nil)
	copy(t.buckets[idx+2:], t.buckets[idx+1:])
	t.buckets[idx+1] = selfHalf

	t.log.Debugf("split bucket %d into depth %d buckets (now %d buckets)", idx, other.Depth(), len(t.buckets))

	idx = t.bucketIndexForLocked(n.ID)
	return t.buckets[idx].AddNode(n)
}

// canSplitLocked implements the Section 4.2 split eligibility test: the
// bucket holding our own id may always split; any other bucket may
// split only while its depth hasn't yet reached DepthB and isn't a
// multiple of it; and the very first bucket, once any split has
// happened, never splits again.
func (t *Table) canSplitLocked(idx int) bool {
	bucket := t.buckets[idx]

	bucketHasSelf := idx == len(t.buckets)-1
	sharedPrefixRoom := bucket.Depth() < params.DepthB && bucket.Depth()%params.DepthB != 0

	canSplit := bucketHasSelf || sharedPrefixRoom
	canSplit = canSplit && len(t.buckets) < id.Bits
	canSplit = canSplit && !(len(t.buckets) > 1 && idx == 0)
	return canSplit
}

// RemovePeer removes a known node from the table entirely (both the
// live list and the replacement cache of its bucket).
func (t *Table) RemovePeer(nodeID id.Id160) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.bucketIndexForLocked(nodeID)
	t.buckets[idx].RemoveNode(nodeID)
}

// PeerTimedOut records a failed request/response round trip with peer.
// It reports whether the node became stale and was evicted as a
// result.
func (t *Table) PeerTimedOut(peer *node.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndexForLocked(peer.ID)
	bucket := t.buckets[idx]
	for _, n := range bucket.Nodes() {
		if n.ID.Equal(peer.ID) {
			n.MarkFailed()
			if n.IsStale() {
				bucket.RemoveNode(n.ID)
				return true
			}
			return false
		}
	}
	return false
}

// FindNeighbors returns up to maxNumber nodes known by this table that
// are closest to nodeID, gathered from its home bucket and, if that
// bucket alone doesn't have enough, fanning outward alternately into
// its lower- and higher-index neighbors until satisfied or exhausted.
func (t *Table) FindNeighbors(nodeID id.Id160, maxNumber int) []*node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndexForLocked(nodeID)
	left, right := idx, idx+1
	useLeft := true

	var found []*node.Node
	current := idx
	for {
		for _, n := range t.buckets[current].Nodes() {
			if n.ID.Equal(nodeID) {
				continue
			}
			found = append(found, n)
			if len(found) == maxNumber {
				return sortByDistance(found, nodeID)
			}
		}

		hasMore := false
		if right == len(t.buckets) {
			useLeft = true
		}
		if left > 0 {
			hasMore = true
			if useLeft {
				left--
				current = left
				useLeft = false
				continue
			}
		}
		if right < len(t.buckets) {
			hasMore = true
			current = right
			right++
		}
		useLeft = true
		if !hasMore {
			break
		}
	}
	return sortByDistance(found, nodeID)
}

func sortByDistance(nodes []*node.Node, target id.Id160) []*node.Node {
	out := make([]*node.Node, len(nodes))
	copy(out, nodes)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			if out[j].ID.Xor(target).Less(out[j-1].ID.Xor(target)) {
				out[j], out[j-1] = out[j-1], out[j]
			} else {
				break
			}
		}
	}
	return out
}

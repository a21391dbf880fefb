// Package node implements the Node record (spec §3.1): a peer's
// identity, reachable endpoint, and the liveness bookkeeping the
// routing table needs to judge it good, questionable, or stale.
package node

import (
	"fmt"
	"time"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/params"
)

// Node is one known peer in the network.
type Node struct {
	ID       id.Id160
	Addr     netio.Endpoint
	lastSeen time.Time
	failures int
}

// New creates a Node freshly learned about (or just pinged), marking it
// seen now.
func New(nodeID id.Id160, addr netio.Endpoint) *Node {
	return &Node{ID: nodeID, Addr: addr, lastSeen: time.Now()}
}

// Restore rebuilds a Node from a persisted record (nodedb), preserving
// its prior last-seen time and failure count instead of treating it as
// freshly seen.
func Restore(nodeID id.Id160, addr netio.Endpoint, lastSeen time.Time, failures int) *Node {
	return &Node{ID: nodeID, Addr: addr, lastSeen: lastSeen, failures: failures}
}

// String renders the node in the knode:// URL form used for bootstrap
// peer lists and log lines, e.g. "knode://<hex id>@1.2.3.4:30310".
func (n *Node) String() string {
	return fmt.Sprintf("knode://%s@%s", n.ID.Hex(), n.Addr.String())
}

// Equal reports whether n and other are the same node per spec §3.1:
// two nodes are equal when either their ids or their endpoints match,
// since a peer that changed its id but kept its address (or vice
// versa) is still the same node for self-exclusion purposes.
func (n *Node) Equal(other *Node) bool {
	if other == nil {
		return false
	}
	return n.ID.Equal(other.ID) || n.Addr.Equal(other.Addr)
}

// MarkSeen resets the failure counter and refreshes the last-seen
// timestamp. Called whenever any message (request or response) is
// received from this node.
func (n *Node) MarkSeen() {
	n.lastSeen = time.Now()
	n.failures = 0
}

// MarkFailed records one failed request/response round trip with this
// node, without resetting last-seen (an unresponsive node doesn't
// become "recently seen" just because we tried it).
func (n *Node) MarkFailed() {
	n.failures++
}

// LastSeen reports when this node was last known to be alive.
func (n *Node) LastSeen() time.Time {
	return n.lastSeen
}

// Failures reports the current consecutive-failure count.
func (n *Node) Failures() int {
	return n.failures
}

// IsQuestionable reports whether the node has gone quiet long enough
// that it should be actively pinged before being trusted further.
func (n *Node) IsQuestionable() bool {
	return time.Since(n.lastSeen) > params.NodeInactiveTimeBeforeQuestionable
}

// IsStale reports whether the node has failed enough consecutive
// requests to be evicted outright.
func (n *Node) IsStale() bool {
	return n.failures >= params.NodeFailedCommsBeforeStale
}

// Package kbucket implements one k-bucket of the routing table (spec
// §3.2): a live list bounded at params.K entries plus an unbounded
// replacement cache, both ordered least- to most-recently-seen.
// Grounded on the original engine's KBucket (p2p/kademlia/kbucket.h /
// kbucket.cpp), adapted from its std::deque-of-Node to a doubly linked
// list the way the teacher's udp.go keeps its pending-reply queue in a
// container/list.
package kbucket

import (
	"container/list"
	"math/rand"
	"time"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/params"
)

// KBucket holds up to params.K live nodes sharing a common id prefix,
// plus a replacement cache for nodes seen while the bucket was full.
type KBucket struct {
	depth        int
	prefix       id.Id160
	prefixLen    int
	nodes        *list.List // *node.Node, least-recently-seen at Front
	replacements *list.List // *node.Node, least-recently-seen at Front
	lastUpdated  time.Time
}

// New creates an empty bucket at the given depth, covering the keyspace
// region sharing prefix's leading prefixLen bits.
func New(depth int, prefix id.Id160, prefixLen int) *KBucket {
	return &KBucket{
		depth:        depth,
		prefix:       prefix,
		prefixLen:    prefixLen,
		nodes:        list.New(),
		replacements: list.New(),
		lastUpdated:  time.Now(),
	}
}

// Depth reports the bucket's depth in the routing tree.
func (b *KBucket) Depth() int { return b.depth }

// PrefixLen reports how many leading bits of prefix this bucket covers.
func (b *KBucket) PrefixLen() int { return b.prefixLen }

// Size returns the number of live nodes and replacement nodes.
func (b *KBucket) Size() (live, replacements int) {
	return b.nodes.Len(), b.replacements.Len()
}

// Empty reports whether the bucket holds no live nodes.
func (b *KBucket) Empty() bool { return b.nodes.Len() == 0 }

// Full reports whether the live list is at capacity; the bucket can
// still accept replacement-cache entries.
func (b *KBucket) Full() bool { return b.nodes.Len() >= params.K }

// LastUpdated reports when the bucket's node set last changed.
func (b *KBucket) LastUpdated() time.Time { return b.lastUpdated }

func (b *KBucket) touch() { b.lastUpdated = time.Now() }

// CanHold reports whether nodeID falls within this bucket's keyspace
// range, i.e. shares the bucket's prefix.
func (b *KBucket) CanHold(nodeID id.Id160) bool {
	return nodeID.HasPrefix(b.prefix, b.prefixLen)
}

// Nodes returns the live nodes, ordered least- to most-recently-seen.
func (b *KBucket) Nodes() []*node.Node {
	return collect(b.nodes)
}

// Replacements returns the replacement cache, ordered least- to
// most-recently-seen.
func (b *KBucket) Replacements() []*node.Node {
	return collect(b.replacements)
}

func collect(l *list.List) []*node.Node {
	out := make([]*node.Node, 0, l.Len())
	for el := l.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*node.Node))
	}
	return out
}

func findByID(l *list.List, nodeID id.Id160) *list.Element {
	for el := l.Front(); el != nil; el = el.Next() {
		if el.Value.(*node.Node).ID.Equal(nodeID) {
			return el
		}
	}
	return nil
}

// LeastRecentlySeen returns the node at the head of the live list, or
// nil if the bucket is empty.
func (b *KBucket) LeastRecentlySeen() *node.Node {
	el := b.nodes.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*node.Node)
}

// SelectRandom returns a uniformly random live node, or nil if empty.
func (b *KBucket) SelectRandom() *node.Node {
	n := b.nodes.Len()
	if n == 0 {
		return nil
	}
	idx := rand.Intn(n)
	el := b.nodes.Front()
	for i := 0; i < idx; i++ {
		el = el.Next()
	}
	return el.Value.(*node.Node)
}

// AddNode inserts n into the bucket. If a node with the same id is
// already present, it is moved to the tail (most-recently-seen). If
// the bucket is full, n is pushed onto the replacement cache instead
// and AddNode reports false.
func (b *KBucket) AddNode(n *node.Node) bool {
	defer b.touch()

	if existing := findByID(b.nodes, n.ID); existing != nil {
		b.nodes.Remove(existing)
		b.nodes.PushBack(n)
		return true
	}
	if !b.Full() {
		b.nodes.PushBack(n)
		return true
	}
	if existing := findByID(b.replacements, n.ID); existing != nil {
		b.replacements.Remove(existing)
	}
	b.replacements.PushBack(n)
	return false
}

// RemoveNode evicts the node with the given id from the live list. If
// the replacement cache is non-empty, its most-recently-seen entry is
// promoted into the now-vacant slot. A node absent from the live list
// is looked for in the replacement cache instead (and dropped there).
func (b *KBucket) RemoveNode(nodeID id.Id160) {
	defer b.touch()

	if el := findByID(b.nodes, nodeID); el != nil {
		b.nodes.Remove(el)
		if back := b.replacements.Back(); back != nil {
			b.replacements.Remove(back)
			b.nodes.PushBack(back.Value)
		}
		return
	}
	if el := findByID(b.replacements, nodeID); el != nil {
		b.replacements.Remove(el)
	}
}

// Split divides the bucket's keyspace range in two at the next prefix
// bit, redistributing live and replacement nodes by which half their id
// falls into. self is the local node's id: per the original engine's
// insert/insert/erase dance (kbucket.cpp), the half that covers self is
// always returned second (selfHalf), regardless of whether that half
// happens to be the bit-0 or bit-1 child, so callers that rely on "the
// last bucket is always ours" (e.g. the routing table's split policy)
// stay correct no matter which way self's bit falls.
func (b *KBucket) Split(self id.Id160) (other, selfHalf *KBucket) {
	zero := New(b.depth+1, b.prefix.WithBit(b.prefixLen, 0), b.prefixLen+1)
	one := New(b.depth+1, b.prefix.WithBit(b.prefixLen, 1), b.prefixLen+1)

	for _, n := range collect(b.nodes) {
		if zero.CanHold(n.ID) {
			zero.nodes.PushBack(n)
		} else {
			one.nodes.PushBack(n)
		}
	}
	for _, n := range collect(b.replacements) {
		if zero.CanHold(n.ID) {
			zero.replacements.PushBack(n)
		} else {
			one.replacements.PushBack(n)
		}
	}

	if zero.CanHold(self) {
		return one, zero
	}
	return zero, one
}

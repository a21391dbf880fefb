// Package lookup implements the iterative Kademlia procedures (spec
// §3.4): FIND_NODE, FIND_VALUE, STORE_VALUE and BOOTSTRAP (which pings
// its seed nodes). Grounded on the original engine's BaseLookupTask
// candidate state machine
// (original_source/p2p/include/p2p/kademlia/detail/lookup_task.h) and
// its FindNodeTask/FindValueTask/StoreValueTask/BootstrapProcedure
// drivers, adapted from the C++ shared_ptr/callback-recursion shape
// into a round-based loop driven by a sync.WaitGroup per round — the
// same "fire Alpha requests, wait, fold in new candidates, repeat"
// iteration, expressed with goroutines instead of continuation
// callbacks.
package lookup

import (
	"context"
	"sort"
	"sync"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/params"
	"github.com/MOACChain/knode/wire"
)

type candidateState int

const (
	stateUnknown candidateState = iota
	stateContacted
	stateResponded
	stateTimedOut
)

type candidate struct {
	peer  *node.Node
	state candidateState
}

// state tracks the set of candidates for one iterative lookup, kept in
// ascending order of XOR distance to the lookup key, mirroring
// BaseLookupTask's distance-keyed candidate map.
type state struct {
	key        id.Id160
	candidates []*candidate
	seen       map[id.Id160]bool
}

func newState(key id.Id160, initial []*node.Node) *state {
	s := &state{key: key, seen: make(map[id.Id160]bool)}
	s.add(initial)
	return s
}

func (s *state) add(peers []*node.Node) {
	for _, p := range peers {
		if p.ID.Equal(s.key) || s.seen[p.ID] {
			continue
		}
		s.seen[p.ID] = true
		s.candidates = append(s.candidates, &candidate{peer: p})
	}
	sort.Slice(s.candidates, func(i, j int) bool {
		return s.candidates[i].peer.ID.Xor(s.key).Less(s.candidates[j].peer.ID.Xor(s.key))
	})
}

// selectUncontacted returns up to max candidates still in
// stateUnknown, marking them stateContacted.
func (s *state) selectUncontacted(max int) []*candidate {
	var out []*candidate
	for _, c := range s.candidates {
		if len(out) == max {
			break
		}
		if c.state == stateUnknown {
			c.state = stateContacted
			out = append(out, c)
		}
	}
	return out
}

// responded returns up to max candidates in stateResponded, closest
// first.
func (s *state) responded(max int) []*node.Node {
	var out []*node.Node
	for _, c := range s.candidates {
		if len(out) == max {
			break
		}
		if c.state == stateResponded {
			out = append(out, c.peer)
		}
	}
	return out
}

func (s *state) markResponded(p *node.Node) {
	for _, c := range s.candidates {
		if c.peer.ID.Equal(p.ID) {
			c.state = stateResponded
			return
		}
	}
}

func (s *state) markTimedOut(p *node.Node) {
	for _, c := range s.candidates {
		if c.peer.ID.Equal(p.ID) {
			c.state = stateTimedOut
			return
		}
	}
}

// finder is the subset of *network.Network the lookup procedures need,
// narrowed to an interface so tests can drive the state machine without
// a real socket.
type finder interface {
	FindNode(ctx context.Context, dst netio.Endpoint, target id.Id160) ([]wire.Node, error)
	FindValue(ctx context.Context, dst netio.Endpoint, key id.Id160) ([]byte, []wire.Node, error)
	Store(ctx context.Context, dst netio.Endpoint, key id.Id160, value []byte) error
	Ping(ctx context.Context, dst netio.Endpoint) error
}

// tableOps is the subset of *routing.Table the lookup procedures need.
type tableOps interface {
	FindNeighbors(nodeID id.Id160, maxNumber int) []*node.Node
	AddPeer(n *node.Node) bool
	PeerTimedOut(peer *node.Node) bool
}

func wireToNode(w wire.Node) *node.Node {
	return node.New(w.ID, w.Addr)
}

// FindNode runs an iterative FIND_NODE lookup for target, returning up
// to params.K nodes known by the network, closest first.
func FindNode(ctx context.Context, net finder, table tableOps, target id.Id160, log *klog.Logger) []*node.Node {
	if log == nil {
		log = klog.Nop()
	}
	st := newState(target, table.FindNeighbors(target, params.Alpha))

	for {
		round := st.selectUncontacted(params.Alpha)
		if len(round) == 0 {
			break
		}
		var wg sync.WaitGroup
		var mu sync.Mutex
		var discovered []*node.Node
		for _, c := range round {
			wg.Add(1)
			go func(c *candidate) {
				defer wg.Done()
				peers, err := net.FindNode(ctx, c.peer.Addr, target)
				if err != nil {
					mu.Lock()
					st.markTimedOut(c.peer)
					mu.Unlock()
					table.PeerTimedOut(c.peer)
					log.Debugf("find_node: %s failed: %v", c.peer, err)
					return
				}
				c.peer.MarkSeen()
				table.AddPeer(c.peer)
				mu.Lock()
				st.markResponded(c.peer)
				for _, p := range peers {
					discovered = append(discovered, wireToNode(p))
				}
				mu.Unlock()
			}(c)
		}
		wg.Wait()
		st.add(discovered)
	}
	return st.responded(params.K)
}

// FindValue runs an iterative FIND_VALUE lookup. It returns the value
// if found; otherwise it behaves like FindNode and returns the closest
// responded nodes so the caller can, per spec, store to them.
func FindValue(ctx context.Context, net finder, table tableOps, key id.Id160, log *klog.Logger) (value []byte, closest []*node.Node, err error) {
	if log == nil {
		log = klog.Nop()
	}
	st := newState(key, table.FindNeighbors(key, params.Alpha))

	for {
		round := st.selectUncontacted(params.Alpha)
		if len(round) == 0 {
			break
		}
		var wg sync.WaitGroup
		var mu sync.Mutex
		var discovered []*node.Node
		var found []byte

		for _, c := range round {
			wg.Add(1)
			go func(c *candidate) {
				defer wg.Done()
				v, peers, ferr := net.FindValue(ctx, c.peer.Addr, key)
				if ferr != nil {
					mu.Lock()
					st.markTimedOut(c.peer)
					mu.Unlock()
					table.PeerTimedOut(c.peer)
					return
				}
				c.peer.MarkSeen()
				table.AddPeer(c.peer)
				mu.Lock()
				st.markResponded(c.peer)
				if len(v) > 0 {
					found = v
				}
				for _, p := range peers {
					discovered = append(discovered, wireToNode(p))
				}
				mu.Unlock()
			}(c)
		}
		wg.Wait()
		if found != nil {
			return found, nil, nil
		}
		st.add(discovered)
	}
	closest = st.responded(params.K)
	if len(closest) == 0 {
		return nil, nil, errs.ErrValueNotFound
	}
	return nil, closest, errs.ErrValueNotFound
}

// StoreValue runs a FIND_NODE lookup for key, then stores value on the
// params.RedundantSaveCount nearest nodes that responded during it.
func StoreValue(ctx context.Context, net finder, table tableOps, key id.Id160, value []byte, log *klog.Logger) error {
	targets := FindNode(ctx, net, table, key, log)
	if len(targets) == 0 {
		return errs.ErrInitialPeerFailedToRespond
	}
	if len(targets) > params.RedundantSaveCount {
		targets = targets[:params.RedundantSaveCount]
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var lastErr error
	stored := 0
	for _, t := range targets {
		wg.Add(1)
		go func(t *node.Node) {
			defer wg.Done()
			if err := net.Store(ctx, t.Addr, key, value); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				table.PeerTimedOut(t)
				return
			}
			mu.Lock()
			stored++
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	if stored == 0 {
		if lastErr != nil {
			return lastErr
		}
		return errs.ErrInitialPeerFailedToRespond
	}
	return nil
}

// Bootstrap pings every seed node, adds the responsive ones to the
// routing table, and then runs a FIND_NODE lookup for the local node's
// own id to pull in its neighborhood. It reports ErrInitialPeerFailedToRespond
// if not a single seed answered.
func Bootstrap(ctx context.Context, net finder, table tableOps, self id.Id160, seeds []*node.Node, log *klog.Logger) error {
	if log == nil {
		log = klog.Nop()
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	responded := 0
	for _, seed := range seeds {
		wg.Add(1)
		go func(seed *node.Node) {
			defer wg.Done()
			if err := net.Ping(ctx, seed.Addr); err != nil {
				log.Debugf("bootstrap: seed %s unreachable: %v", seed, err)
				return
			}
			seed.MarkSeen()
			table.AddPeer(seed)
			mu.Lock()
			responded++
			mu.Unlock()
		}(seed)
	}
	wg.Wait()

	if responded == 0 {
		return errs.ErrInitialPeerFailedToRespond
	}

	FindNode(ctx, net, table, self, log)
	return nil
}

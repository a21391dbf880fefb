// Package engine wires together the routing table, the network RPC
// layer, and the local value store into the running Kademlia node
// (spec §3). Grounded on
// original_source/p2p/include/p2p/kademlia/engine.h's Engine class
// (ProcessNewMessage/HandlePingRequest/HandleStoreRequest/
// HandleFindPeerRequest/HandleFindValueRequest/HandleNewMessage,
// ScheduleBucketRefreshTimer/RefreshBuckets, DiscoverNeighbors) and the
// teacher's udp.loop continuous-timeout / NTP drift check
// (p2p/discover/udp.go).
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/lookup"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/network"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/params"
	"github.com/MOACChain/knode/routing"
	"github.com/MOACChain/knode/store"
	"github.com/MOACChain/knode/wire"
)

// Continuous-timeout / clock-drift tunables, carried over from the
// teacher's udp.go constants of the same name.
const (
	ntpFailureThreshold = 32
	ntpWarningCooldown  = 10 * time.Minute
	driftThreshold      = 10 * time.Second
	ntpPool             = "pool.ntp.org"
)

// Engine is one running Kademlia node: identity, routing table, RPC
// transport, and local value store.
type Engine struct {
	self  id.Id160
	table *routing.Table
	net   *network.Network
	store *store.Store
	log   *klog.Logger

	done chan struct{}
	wg   sync.WaitGroup

	contTimeouts int32
	ntpMu        sync.Mutex
	ntpWarnTime  time.Time
}

// New binds a UDP listener at laddr under identity self and wires its
// inbound handler to the engine's own message processing.
func New(laddr string, self id.Id160, log *klog.Logger) (*Engine, error) {
	if log == nil {
		log = klog.Nop()
	}
	e := &Engine{
		self:  self,
		store: store.New(),
		log:   log,
		done:  make(chan struct{}),
	}
	n, err := network.Listen(laddr, self, e.handle, log)
	if err != nil {
		return nil, err
	}
	e.net = n
	e.table = routing.New(self, n.LocalAddr(), log)
	return e, nil
}

// LocalAddr reports the bound endpoint.
func (e *Engine) LocalAddr() netio.Endpoint { return e.net.LocalAddr() }

// RoutingTable exposes the engine's routing table for inspection (used
// by the console and display packages).
func (e *Engine) RoutingTable() *routing.Table { return e.table }

// Store exposes the engine's local value store for inspection.
func (e *Engine) Store() *store.Store { return e.store }

// Self reports the engine's own node identifier.
func (e *Engine) Self() id.Id160 { return e.self }

// Ping checks liveness of dst.
func (e *Engine) Ping(ctx context.Context, dst netio.Endpoint) error {
	return e.net.Ping(ctx, dst)
}

// FindNode runs an iterative FIND_NODE lookup for target.
func (e *Engine) FindNode(ctx context.Context, target id.Id160) []*node.Node {
	return lookup.FindNode(ctx, e.net, e.table, target, e.log)
}

// FindValue runs an iterative FIND_VALUE lookup for key, checking the
// local store first.
func (e *Engine) FindValue(ctx context.Context, key id.Id160) ([]byte, []*node.Node, error) {
	if val, ok := e.store.Get(key); ok {
		return val, nil, nil
	}
	return lookup.FindValue(ctx, e.net, e.table, key, e.log)
}

// StoreValue saves value locally and replicates it to the nearest
// nodes found for key.
func (e *Engine) StoreValue(ctx context.Context, key id.Id160, value []byte) error {
	e.store.Put(key, value)
	return lookup.StoreValue(ctx, e.net, e.table, key, value, e.log)
}

// AddBootstrapNode registers a known peer to seed initial discovery.
// Mirrors Engine::AddBootstrapNode.
func (e *Engine) AddBootstrapNode(n *node.Node) {
	e.log.Debugf("adding bootstrap node at %s", n.Addr)
	e.table.AddPeer(n)
}

// Start launches the periodic bucket refresh loop and, if the routing
// table already holds bootstrap nodes, kicks off discovery. Mirrors
// Engine::Start.
func (e *Engine) Start(ctx context.Context) {
	if !e.table.Empty() {
		seeds := e.table.Buckets()
		var seedNodes []*node.Node
		for _, b := range seeds {
			seedNodes = append(seedNodes, b.Nodes()...)
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.discoverNeighbors(ctx, seedNodes)
		}()
	} else {
		e.log.Infof("engine started as a bootstrap node - empty routing table")
	}

	e.wg.Add(1)
	go e.refreshLoop(ctx)
}

// Close stops the refresh loop and tears down the network layer.
func (e *Engine) Close() {
	close(e.done)
	e.net.Close()
	e.wg.Wait()
}

// discoverNeighbors runs the bootstrap procedure: ping known seeds,
// then look up the local node's own id to populate nearby buckets.
// Mirrors Engine::DiscoverNeighbors / BootstrapProcedure.
func (e *Engine) discoverNeighbors(ctx context.Context, seeds []*node.Node) {
	if err := lookup.Bootstrap(ctx, e.net, e.table, e.self, seeds, e.log); err != nil {
		e.log.Warnf("bootstrap failed: %v", err)
		return
	}
	e.log.Debugf("find node on self completed")
	e.refreshAllBuckets(ctx)
}

// refreshLoop fires every params.PeriodicRefreshTimer, mirroring
// ScheduleBucketRefreshTimer: it pings the next bucket's least recently
// seen node round-robin, then refreshes any bucket that has gone stale.
func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(params.PeriodicRefreshTimer)
	defer ticker.Stop()

	bucketIndex := 0
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			buckets := e.table.Buckets()
			if bucketIndex < len(buckets) {
				b := buckets[bucketIndex]
				if least := b.LeastRecentlySeen(); least != nil {
					e.wg.Add(1)
					go func(peer *node.Node) {
						defer e.wg.Done()
						e.pingAndReap(ctx, peer)
					}(least)
				}
				bucketIndex++
			} else {
				bucketIndex = 0
			}
			e.refreshAllBuckets(ctx)
		}
	}
}

// refreshAllBuckets looks up a random id in every bucket that has gone
// longer than params.BucketInactiveTimeBeforeRefresh without a
// structural update. Mirrors Engine::RefreshBuckets.
func (e *Engine) refreshAllBuckets(ctx context.Context) {
	for _, b := range e.table.Buckets() {
		if time.Since(b.LastUpdated()) <= params.BucketInactiveTimeBeforeRefresh {
			continue
		}
		target := b.SelectRandom()
		if target == nil {
			continue
		}
		e.log.Debugf("periodic bucket refresh -> lookup for random peer with id %s", target.ID.Hex())
		e.wg.Add(1)
		go func(targetID id.Id160) {
			defer e.wg.Done()
			lookup.FindNode(ctx, e.net, e.table, targetID, e.log)
			e.log.Debugf("periodic bucket refresh completed")
		}(target.ID)
	}
}

// pingAndReap pings peer and lets the routing table's normal timeout
// bookkeeping evict it on repeated failure.
func (e *Engine) pingAndReap(ctx context.Context, peer *node.Node) {
	err := e.net.Ping(ctx, peer.Addr)
	e.recordTimeout(err)
	if err != nil {
		e.table.PeerTimedOut(peer)
		return
	}
	peer.MarkSeen()
	e.table.AddPeer(peer)
}

// handle is the network.Handler wired into Listen. It processes every
// inbound request: first it learns the sender (mirroring
// Engine::HandleNewMessage's AddPeer-or-ping-least-recent dance), then
// dispatches on message type (mirroring ProcessNewMessage).
func (e *Engine) handle(from netio.Endpoint, sender id.Id160, body interface{}) (interface{}, bool) {
	e.learnSender(from, sender)

	switch b := body.(type) {
	case nil:
		return nil, true
	case wire.StoreReq:
		e.log.Debugf("saving key '%s' in my own store", b.Key.Hex())
		e.store.Put(b.Key, b.Value)
		return nil, true
	case wire.FindNodeReq:
		return wire.FindNodeResp{Peers: e.neighborsOf(b.Target)}, true
	case wire.FindValueReq:
		if val, ok := e.store.Get(b.Key); ok {
			return wire.FindValueResp{Value: val}, true
		}
		return wire.FindNodeResp{Peers: e.neighborsOf(b.Key)}, true
	default:
		return nil, false
	}
}

func (e *Engine) neighborsOf(target id.Id160) []wire.Node {
	neighbors := e.table.FindNeighbors(target, params.K)
	out := make([]wire.Node, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, wire.Node{ID: n.ID, Addr: n.Addr})
	}
	return out
}

// learnSender adds the sender to the routing table. If the table is
// already full for the sender's bucket, it pings that bucket's least
// recently seen node so a stale entry can be evicted in its favor on
// the next contact.
func (e *Engine) learnSender(from netio.Endpoint, sender id.Id160) {
	if sender.Equal(e.self) {
		return
	}
	n := node.New(sender, from)
	if e.table.AddPeer(n) {
		return
	}
	idx := e.table.BucketIndexFor(sender)
	buckets := e.table.Buckets()
	if idx >= len(buckets) {
		return
	}
	least := buckets[idx].LeastRecentlySeen()
	if least == nil || !least.IsQuestionable() {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pingAndReap(context.Background(), least)
	}()
}

// recordTimeout increments the continuous-timeout counter used for the
// NTP drift check, mirroring udp.loop's contTimeouts/ntpFailureThreshold
// accounting. Call it whenever an outbound request observes
// errs.ErrTimeout.
func (e *Engine) recordTimeout(err error) {
	if !errors.Is(err, errs.ErrTimeout) {
		atomic.StoreInt32(&e.contTimeouts, 0)
		return
	}
	if atomic.AddInt32(&e.contTimeouts, 1) <= ntpFailureThreshold {
		return
	}
	atomic.StoreInt32(&e.contTimeouts, 0)

	e.ntpMu.Lock()
	defer e.ntpMu.Unlock()
	if time.Since(e.ntpWarnTime) < ntpWarningCooldown {
		return
	}
	e.ntpWarnTime = time.Now()
	go e.checkClockDrift()
}

// checkClockDrift queries an NTP server and warns if the local clock
// has drifted by more than driftThreshold, mirroring the teacher's
// checkClockDrift helper of the same constants.
func (e *Engine) checkClockDrift() {
	response, err := ntp.Query(ntpPool)
	if err != nil {
		e.log.Warnf("failed to query NTP server: %v", err)
		return
	}
	if response.ClockOffset > driftThreshold || response.ClockOffset < -driftThreshold {
		e.log.Warnf("system clock seems off by %v, which can prevent peer connectivity", response.ClockOffset)
	} else {
		e.log.Debugf("system clock drift within tolerance: %v", response.ClockOffset)
	}
}

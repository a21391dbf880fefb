// Package network glues the wire codec, the response dispatcher, and
// the netio transport into the request/response RPC surface the
// lookup and engine packages call (PING, FIND_NODE, FIND_VALUE,
// STORE_VALUE). Grounded on the teacher's udp.send/ping/findnode/
// findvalue/store/handlePacket, minus the RLP framing and ECDSA
// signing those relied on.
package network

import (
	"context"

	"github.com/MOACChain/knode/dispatch"
	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/params"
	"github.com/MOACChain/knode/timer"
	"github.com/MOACChain/knode/wire"
)

// Handler processes an inbound request. respond reports whether a
// response should be sent at all (false silently drops the request;
// the engine's handler does so for unrecognised request bodies); body
// is the typed response payload, or
// nil for a bare acknowledgement (PING_RESP carries none, and
// STORE_VALUE's acknowledgement is a PING_RESP with no body).
type Handler func(from netio.Endpoint, sender id.Id160, body interface{}) (resp interface{}, respond bool)

// Network is the RPC layer for one local node identity.
type Network struct {
	self   id.Id160
	ch     *netio.Channel
	wheel  *timer.Wheel
	disp   *dispatch.Dispatcher
	log    *klog.Logger
	handle Handler
	done   chan struct{}
}

// Listen opens a UDP channel on laddr (optionally SO_REUSEPORT-bound,
// see listener_unix.go/listener_windows.go) and starts pumping inbound
// datagrams into handle.
func Listen(laddr string, self id.Id160, handle Handler, log *klog.Logger) (*Network, error) {
	if log == nil {
		log = klog.Nop()
	}
	uc, err := reusableUDPConn(laddr)
	if err != nil {
		return nil, err
	}
	ch := netio.NewChannel(uc, log)
	wheel := timer.New(log)
	n := &Network{
		self:   self,
		ch:     ch,
		wheel:  wheel,
		disp:   dispatch.New(wheel, log),
		log:    log,
		handle: handle,
		done:   make(chan struct{}),
	}
	go n.pump()
	return n, nil
}

// LocalAddr reports the bound endpoint.
func (n *Network) LocalAddr() netio.Endpoint { return n.ch.LocalAddr() }

// Close tears down the channel, timer wheel, and dispatcher.
func (n *Network) Close() {
	close(n.done)
	n.ch.Close()
	n.disp.Close()
	n.wheel.Close()
}

func (n *Network) pump() {
	for pkt := range n.ch.Packets() {
		n.handlePacket(pkt)
	}
}

func (n *Network) handlePacket(pkt netio.Packet) {
	msg, err := wire.Decode(pkt.Data)
	if err != nil {
		n.log.Debugf("dropping malformed packet from %s: %v", pkt.From, err)
		return
	}

	if msg.Header.Type.IsResponse() {
		n.disp.Deliver(msg.Header.Token, msg.Body)
		return
	}

	if n.handle == nil {
		return
	}
	respBody, respond := n.handle(pkt.From, msg.Header.Source, msg.Body)
	if !respond {
		return
	}
	respType := responseTypeFor(msg.Header.Type)
	if _, ok := respBody.(wire.FindNodeResp); ok {
		respType = wire.FindNodeResp
	}
	if respType == wire.PingResp {
		respBody = nil
	}
	buf, err := wire.Encode(wire.Header{
		Version: wire.Version,
		Type:    respType,
		Source:  n.self,
		Token:   msg.Header.Token,
	}, respBody)
	if err != nil {
		n.log.Errorf("encoding response to %s: %v", pkt.From, err)
		return
	}
	if err := n.ch.Send(pkt.From, buf); err != nil {
		n.log.Debugf("send response to %s: %v", pkt.From, err)
	}
}

// responseTypeFor maps a request type to its response type. STORE_VALUE
// has no dedicated response shape in the wire format; a PING_RESP
// stands in as its acknowledgement.
func responseTypeFor(reqType wire.Type) wire.Type {
	switch reqType {
	case wire.FindNodeReq:
		return wire.FindNodeResp
	case wire.FindValueReq:
		return wire.FindValueResp
	default:
		return wire.PingResp
	}
}

// request sends reqType/body to dst and blocks (honoring ctx) until a
// matching response arrives, the timeout elapses, or the Network is
// closed.
func (n *Network) request(ctx context.Context, dst netio.Endpoint, reqType wire.Type, body interface{}) (interface{}, error) {
	token := wire.NewToken()
	buf, err := wire.Encode(wire.Header{
		Version: wire.Version,
		Type:    reqType,
		Source:  n.self,
		Token:   token,
	}, body)
	if err != nil {
		return nil, err
	}

	result := make(chan interface{}, 1)
	errc := make(chan error, 1)
	if err := n.disp.Register(token, params.RequestTimeout, func(resp interface{}) {
		result <- resp
	}, func(e error) {
		errc <- e
	}); err != nil {
		return nil, err
	}

	if err := n.ch.Send(dst, buf); err != nil {
		return nil, err
	}

	select {
	case resp := <-result:
		return resp, nil
	case err := <-errc:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.done:
		return nil, errs.ErrClosed
	}
}

// Ping sends a PING to dst and waits for the PONG.
func (n *Network) Ping(ctx context.Context, dst netio.Endpoint) error {
	_, err := n.request(ctx, dst, wire.PingReq, nil)
	return err
}

// FindNode asks dst for the nodes it knows closest to target.
func (n *Network) FindNode(ctx context.Context, dst netio.Endpoint, target id.Id160) ([]wire.Node, error) {
	resp, err := n.request(ctx, dst, wire.FindNodeReq, wire.FindNodeReq{Target: target})
	if err != nil {
		return nil, err
	}
	body, ok := resp.(wire.FindNodeResp)
	if !ok {
		return nil, errs.ErrMalformed
	}
	return body.Peers, nil
}

// FindValue asks dst for the value stored under key. Per spec, a peer
// that does not hold the value replies with a FindNodeResp of its
// closest neighbors to key instead, so the caller can continue the
// iterative lookup; both shapes are valid replies to a FindValueReq.
func (n *Network) FindValue(ctx context.Context, dst netio.Endpoint, key id.Id160) ([]byte, []wire.Node, error) {
	resp, err := n.request(ctx, dst, wire.FindValueReq, wire.FindValueReq{Key: key})
	if err != nil {
		return nil, nil, err
	}
	switch body := resp.(type) {
	case wire.FindValueResp:
		return body.Value, nil, nil
	case wire.FindNodeResp:
		return nil, body.Peers, nil
	default:
		return nil, nil, errs.ErrMalformed
	}
}

// Store asks dst to hold value under key. STORE_VALUE carries no
// response body of its own in this wire format; success is simply
// "a PONG-shaped acknowledgement arrived before timeout."
func (n *Network) Store(ctx context.Context, dst netio.Endpoint, key id.Id160, value []byte) error {
	_, err := n.request(ctx, dst, wire.StoreReq, wire.StoreReq{Key: key, Value: value})
	return err
}


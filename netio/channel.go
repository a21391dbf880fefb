package netio

import (
	"net"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/params"
)

// Packet is one received datagram along with the endpoint it arrived
// from.
type Packet struct {
	Data []byte
	From Endpoint
}

// conn is the subset of *net.UDPConn the Channel needs. Narrowing it to
// an interface keeps the transport swappable in tests, mirroring the
// teacher's own udp.conn interface in p2p/discover/udp.go.
type conn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// Channel is the asynchronous UDP transport described in spec §4.2: a
// fire-and-forget Send and a background readLoop that feeds a channel of
// inbound Packets. It never blocks a caller's event-loop tick on
// network I/O.
type Channel struct {
	conn     conn
	packets  chan Packet
	closing  chan struct{}
	log      *klog.Logger
}

// Listen opens a UDP socket bound to laddr (e.g. ":30310") and starts its
// background read loop.
func Listen(laddr string, log *klog.Logger) (*Channel, error) {
	if log == nil {
		log = klog.Nop()
	}
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return newChannel(c, log), nil
}

// NewChannel wraps an already-bound *net.UDPConn (e.g. one opened with
// SO_REUSEPORT by the network package) as a Channel and starts its
// background read loop.
func NewChannel(c *net.UDPConn, log *klog.Logger) *Channel {
	if log == nil {
		log = klog.Nop()
	}
	return newChannel(c, log)
}

func newChannel(c conn, log *klog.Logger) *Channel {
	ch := &Channel{
		conn:    c,
		packets: make(chan Packet, 256),
		closing: make(chan struct{}),
		log:     log,
	}
	go ch.readLoop()
	return ch
}

// LocalAddr reports the endpoint the Channel is bound to.
func (c *Channel) LocalAddr() Endpoint {
	return EndpointFromUDPAddr(c.conn.LocalAddr().(*net.UDPAddr))
}

// SetTTL sets the outgoing TTL/hop limit on the underlying socket, if
// it is a real *net.UDPConn (always true outside of tests that swap in
// a fake conn).
func (c *Channel) SetTTL(ttl int) error {
	uc, ok := c.conn.(*net.UDPConn)
	if !ok {
		return nil
	}
	return SetTTL(uc, ttl)
}

// Packets returns the channel of inbound datagrams. It is closed once
// the read loop exits (on Close or a permanent read error).
func (c *Channel) Packets() <-chan Packet {
	return c.packets
}

// Send writes buf to dst. It does not block on a reply; the caller
// tracks correlation/timeout separately (via the dispatch package).
func (c *Channel) Send(dst Endpoint, buf []byte) error {
	if len(buf) > params.SafePayloadSize {
		return errs.ErrTooLarge
	}
	_, err := c.conn.WriteToUDP(buf, dst.UDPAddr())
	if err != nil {
		return errs.ErrTransport
	}
	return nil
}

// Close shuts down the socket and stops the read loop. Safe to call
// more than once.
func (c *Channel) Close() error {
	select {
	case <-c.closing:
		return nil
	default:
		close(c.closing)
	}
	return c.conn.Close()
}

// readLoop runs in its own goroutine, mirroring the teacher's
// udp.readLoop: read, filter transient errors, hand the datagram off,
// repeat until the socket is closed.
func (c *Channel) readLoop() {
	defer close(c.packets)
	buf := make([]byte, params.SafePayloadSize)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			if isTemporary(err) {
				c.log.Debugf("temporary udp read error: %v", err)
				continue
			}
			c.log.Debugf("udp read error, stopping read loop: %v", err)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		pkt := Packet{Data: data, From: EndpointFromUDPAddr(from)}
		select {
		case c.packets <- pkt:
		case <-c.closing:
			return
		}
	}
}

type temporary interface {
	Temporary() bool
}

func isTemporary(err error) bool {
	t, ok := err.(temporary)
	return ok && t.Temporary()
}

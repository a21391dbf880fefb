package netio

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// SetTTL sets the outgoing unicast TTL (IPv4) or hop limit (IPv6) on
// conn. A small TTL keeps bootstrap/discovery traffic from leaking past
// the operator's intended network boundary when that boundary is
// enforced by hop count rather than firewalling.
func SetTTL(c *net.UDPConn, ttl int) error {
	if c.LocalAddr().(*net.UDPAddr).IP.To4() != nil {
		return ipv4.NewPacketConn(c).SetTTL(ttl)
	}
	return ipv6.NewPacketConn(c).SetHopLimit(ttl)
}

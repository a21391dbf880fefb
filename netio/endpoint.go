// Package netio implements the UDP transport primitives: the
// Endpoint address type and the Channel abstraction (§4.2) used by the
// network layer to send and receive datagrams.
package netio

import (
	"fmt"
	"net"
)

// Endpoint is an IP address (v4 or v6) and a UDP port.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// String renders the endpoint as "ip:port", bracketing IPv6 addresses.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprintf("%d", e.Port))
}

// UDPAddr converts the endpoint to a *net.UDPAddr for use with the
// standard library's UDP primitives.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: int(e.Port)}
}

// IsIPv4 reports whether the endpoint's address is (or can be
// represented as) an IPv4 address.
func (e Endpoint) IsIPv4() bool {
	return e.IP.To4() != nil
}

// Equal reports whether e and other name the same address and port.
// IP is a net.IP (a byte slice), so Endpoint can't be compared with
// ==; this goes through net.IP.Equal instead.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Port == other.Port && e.IP.Equal(other.IP)
}

// EndpointFromUDPAddr builds an Endpoint from a resolved *net.UDPAddr.
func EndpointFromUDPAddr(a *net.UDPAddr) Endpoint {
	return Endpoint{IP: a.IP, Port: uint16(a.Port)}
}

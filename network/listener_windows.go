//go:build windows

package network

import "net"

// reusableUDPConn has no SO_REUSEPORT equivalent wired on Windows;
// Windows sockets default to exclusive binding, so dual-stack channels
// simply bind distinct ports there instead of sharing one.
func reusableUDPConn(laddr string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}

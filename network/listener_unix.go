//go:build !windows

package network

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusableUDPConn binds a UDP socket with SO_REUSEPORT set, letting an
// IPv4 and an IPv6 Channel share the same port number the way the
// teacher's single-family ListenUDP implies for a dual-stack node.
func reusableUDPConn(laddr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", laddr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

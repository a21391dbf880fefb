//go:build !windows

package ipc

import (
	"net"
	"os"
)

// listen opens a Unix domain socket at path, removing any stale socket
// file left behind by a previous unclean shutdown first.
func listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	os.Chmod(path, 0600)
	return ln, nil
}

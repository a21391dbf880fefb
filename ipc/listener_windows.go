//go:build windows

package ipc

import (
	"net"

	npipe "gopkg.in/natefinch/npipe.v2"
)

// listen opens a Windows named pipe at path (e.g. `\\.\pipe\knode.ipc`).
func listen(path string) (net.Listener, error) {
	return npipe.Listen(path)
}

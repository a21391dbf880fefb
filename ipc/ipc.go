// Package ipc is the local control-plane endpoint referenced by the
// teacher's IPCDisabledFlag/IPCPathFlag in cmd/utils/flags.go
// (setIPC): a Unix domain socket on POSIX, a named pipe on Windows,
// serving the same console commands (ping/findnode/findvalue/store/
// buckets) that the interactive REPL exposes, for scripts and the
// attach command to reach a running node without a TCP port.
package ipc

import (
	"bufio"
	"errors"
	"net"

	"github.com/MOACChain/knode/console"
	"github.com/MOACChain/knode/engine"
	"github.com/MOACChain/knode/klog"
)

// Server accepts IPC connections and runs one console.Evaluate call per
// line received, writing back a single line of response per request.
type Server struct {
	ln  net.Listener
	eng *engine.Engine
	log *klog.Logger
}

// Listen opens the platform-appropriate IPC endpoint at path (a
// filesystem path on POSIX, a pipe name on Windows — see
// listener_windows.go).
func Listen(path string, eng *engine.Engine, log *klog.Logger) (*Server, error) {
	if log == nil {
		log = klog.Nop()
	}
	ln, err := listen(path)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, eng: eng, log: log}, nil
}

// Addr returns the underlying listener's address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts connections until Close is called, handling each on its
// own goroutine. It returns nil when the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	c := console.New(s.eng, s.log)
	defer c.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		result, err := c.Evaluate(line)
		if err != nil {
			writer.WriteString("error: " + err.Error() + "\n")
		} else {
			writer.WriteString(result + "\n")
		}
		if err := writer.Flush(); err != nil {
			s.log.Debugf("ipc: write to client failed: %v", err)
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// Package errs holds the sentinel error values shared across the
// engine. One sentinel per taxonomy kind, the same shape as the
// teacher's errPacketTooSmall/errBadHash/errTimeout/errClosed family in
// p2p/discover/udp.go: plain errors.New values, wrapped with %w at the
// call site when context needs to be attached.
package errs

import "errors"

var (
	// ErrInvalidAddress is raised when an endpoint factory cannot
	// produce a requested-family endpoint (no IPv4/IPv6 address
	// resolved for a host).
	ErrInvalidAddress = errors.New("knode: invalid address")

	// ErrTooLarge is raised when a send buffer exceeds SAFE_PAYLOAD_SIZE.
	ErrTooLarge = errors.New("knode: payload too large")

	// ErrProtocolVersion is raised when a decoded header carries a
	// version other than the one this node speaks.
	ErrProtocolVersion = errors.New("knode: unsupported protocol version")

	// ErrMalformed is raised when a decoded value has an out-of-range
	// tag or otherwise cannot represent a valid message.
	ErrMalformed = errors.New("knode: malformed message")

	// ErrTruncated is raised when a buffer is too small to contain the
	// value being decoded.
	ErrTruncated = errors.New("knode: truncated message")

	// ErrUnassociatedToken is returned by the dispatcher's Register when
	// the token already has a registered handler. An inbound response
	// whose token has no handler is dropped without this error.
	ErrUnassociatedToken = errors.New("knode: unassociated token")

	// ErrTimeout is raised when a request's deadline expires before a
	// response arrives.
	ErrTimeout = errors.New("knode: request timed out")

	// ErrValueNotFound is raised when a FIND_VALUE lookup exhausts its
	// candidate set without finding the value.
	ErrValueNotFound = errors.New("knode: value not found")

	// ErrInitialPeerFailedToRespond is raised when a STORE_VALUE lookup
	// found no Responded candidate to store to.
	ErrInitialPeerFailedToRespond = errors.New("knode: no peer responded")

	// ErrTransport is raised for underlying socket failures that are
	// not a suppressed ConnectionReset.
	ErrTransport = errors.New("knode: transport error")

	// ErrTimerMalfunction is raised when the underlying timer facility
	// reports a non-cancellation failure. Fatal: the caller should
	// terminate the engine.
	ErrTimerMalfunction = errors.New("knode: timer malfunction")

	// ErrClosed is raised by operations attempted after the owning
	// component has been shut down.
	ErrClosed = errors.New("knode: closed")
)

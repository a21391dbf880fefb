// Package wire implements the deterministic little-endian binary codec
// for the protocol defined in spec §4.1: a fixed 41-byte header
// followed by one of seven body shapes. All integers are encoded
// least-significant-byte-first; Id160 values are encoded as their 20
// raw bytes in network (most-significant-byte-first) order, unchanged
// by the surrounding little-endian integer framing. Grounded on the
// teacher's encodePacket/decodePacket (p2p/discover/udp.go) and
// original_source's message.cpp/message_serializer.cpp, reworked onto
// the spec's fixed layout instead of RLP.
package wire

import (
	"encoding/binary"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
)

// Version is the only protocol version this node speaks. Decoding any
// other value fails with ErrProtocolVersion.
const Version byte = 1

// HeaderSize is the fixed wire size of a Header: 1 tag byte + 20-byte
// sender id + 20-byte correlation token.
const HeaderSize = 1 + id.Size + id.Size

// Type identifies the shape of the body that follows a Header.
type Type byte

// Message types, exactly as spec §4.1.
const (
	PingReq Type = iota
	PingResp
	StoreReq
	FindNodeReq
	FindNodeResp
	FindValueReq
	FindValueResp
)

func (t Type) String() string {
	switch t {
	case PingReq:
		return "PING_REQ"
	case PingResp:
		return "PING_RESP"
	case StoreReq:
		return "STORE_REQ"
	case FindNodeReq:
		return "FIND_NODE_REQ"
	case FindNodeResp:
		return "FIND_NODE_RESP"
	case FindValueReq:
		return "FIND_VALUE_REQ"
	case FindValueResp:
		return "FIND_VALUE_RESP"
	default:
		return "UNKNOWN"
	}
}

// IsResponse reports whether t identifies a response-shaped message,
// i.e. one that the network layer routes back into the response
// dispatcher rather than to a request handler.
func (t Type) IsResponse() bool {
	switch t {
	case PingResp, FindNodeResp, FindValueResp:
		return true
	default:
		return false
	}
}

// Header is the fixed 41-byte envelope prefixed to every message.
type Header struct {
	Version byte
	Type    Type
	Source  id.Id160
	Token   id.Id160
}

// EncodeHeader writes h's wire representation.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = (h.Version << 4) | byte(h.Type)
	copy(buf[1:1+id.Size], h.Source[:])
	copy(buf[1+id.Size:], h.Token[:])
	return buf
}

// DecodeHeader parses the fixed header prefix of buf. It returns
// ErrTruncated if buf is too small, ErrProtocolVersion if the encoded
// version is not Version, and ErrMalformed if the type tag is out of
// range.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errs.ErrTruncated
	}
	h.Version = buf[0] >> 4
	h.Type = Type(buf[0] & 0x0f)
	if h.Version != Version {
		return h, errs.ErrProtocolVersion
	}
	if h.Type > FindValueResp {
		return h, errs.ErrMalformed
	}
	copy(h.Source[:], buf[1:1+id.Size])
	copy(h.Token[:], buf[1+id.Size:HeaderSize])
	return h, nil
}

// putUint32 / getUint32 implement the spec's "length:usize | bytes"
// framing for variable-length vectors with a 4-byte little-endian
// length prefix (SAFE_PAYLOAD_SIZE is 1452, so 32 bits is ample and
// matches the fixed-width-int convention the rest of the codec uses).
func putUint32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

func getUint32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

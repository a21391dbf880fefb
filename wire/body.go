package wire

import (
	"net"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/params"
)

const (
	addrTagIPv4 = 1
	addrTagIPv6 = 2
)

// Node is the wire representation of a peer: its identifier and
// reachable endpoint. It carries no liveness bookkeeping — that lives
// on the node.Node record the rest of the engine operates on.
type Node struct {
	ID   id.Id160
	Addr netio.Endpoint
}

// encodedSize returns the number of bytes Node's wire form occupies,
// which varies with the address family (id | port:u16 | tag:u8 | addr).
func (n Node) encodedSize() int {
	if n.Addr.IsIPv4() {
		return id.Size + 2 + 1 + 4
	}
	return id.Size + 2 + 1 + 16
}

func encodeNode(n Node) []byte {
	buf := make([]byte, n.encodedSize())
	copy(buf[:id.Size], n.ID[:])
	off := id.Size
	buf[off] = byte(n.Addr.Port)
	buf[off+1] = byte(n.Addr.Port >> 8)
	off += 2
	if n.Addr.IsIPv4() {
		buf[off] = addrTagIPv4
		copy(buf[off+1:], n.Addr.IP.To4())
	} else {
		buf[off] = addrTagIPv6
		copy(buf[off+1:], n.Addr.IP.To16())
	}
	return buf
}

// decodeNode parses one Node from the front of buf, returning the
// remaining, unconsumed tail.
func decodeNode(buf []byte) (Node, []byte, error) {
	var n Node
	if len(buf) < id.Size+2+1 {
		return n, nil, errs.ErrTruncated
	}
	copy(n.ID[:], buf[:id.Size])
	off := id.Size
	port := uint16(buf[off]) | uint16(buf[off+1])<<8
	tag := buf[off+2]
	off += 3
	var addrLen int
	switch tag {
	case addrTagIPv4:
		addrLen = 4
	case addrTagIPv6:
		addrLen = 16
	default:
		return n, nil, errs.ErrMalformed
	}
	if len(buf) < off+addrLen {
		return n, nil, errs.ErrTruncated
	}
	ip := make(net.IP, addrLen)
	copy(ip, buf[off:off+addrLen])
	n.Addr = netio.Endpoint{IP: ip, Port: port}
	return n, buf[off+addrLen:], nil
}

// --- body payloads -----------------------------------------------------

// FindNodeReq asks the recipient for the nodes it knows closest to
// Target.
type FindNodeReq struct {
	Target id.Id160
}

// FindNodeResp carries up to params.K peers closer to the original
// target than the responder's own neighborhood search stopped at.
type FindNodeResp struct {
	Peers []Node
}

// FindValueReq asks the recipient for the value stored under Key, or
// (if it doesn't have it) the nodes closest to Key.
type FindValueReq struct {
	Key id.Id160
}

// FindValueResp carries the value found for the requested key.
type FindValueResp struct {
	Value []byte
}

// StoreReq asks the recipient to store Value under Key.
type StoreReq struct {
	Key   id.Id160
	Value []byte
}

// EncodeFindNodeReq serializes a FindNodeReq body.
func EncodeFindNodeReq(b FindNodeReq) []byte {
	buf := make([]byte, id.Size)
	copy(buf, b.Target[:])
	return buf
}

// DecodeFindNodeReq parses a FindNodeReq body.
func DecodeFindNodeReq(buf []byte) (FindNodeReq, error) {
	var b FindNodeReq
	if len(buf) < id.Size {
		return b, errs.ErrTruncated
	}
	copy(b.Target[:], buf[:id.Size])
	return b, nil
}

// EncodeFindNodeResp serializes a FindNodeResp body.
func EncodeFindNodeResp(b FindNodeResp) []byte {
	peers := b.Peers
	if len(peers) > params.K {
		peers = peers[:params.K]
	}
	buf := make([]byte, 4)
	putUint32(buf, uint32(len(peers)))
	for _, p := range peers {
		buf = append(buf, encodeNode(p)...)
	}
	return buf
}

// DecodeFindNodeResp parses a FindNodeResp body.
func DecodeFindNodeResp(buf []byte) (FindNodeResp, error) {
	var b FindNodeResp
	if len(buf) < 4 {
		return b, errs.ErrTruncated
	}
	count := getUint32(buf)
	buf = buf[4:]
	if count > params.K {
		return b, errs.ErrMalformed
	}
	b.Peers = make([]Node, 0, count)
	for i := uint32(0); i < count; i++ {
		var n Node
		var err error
		n, buf, err = decodeNode(buf)
		if err != nil {
			return b, err
		}
		b.Peers = append(b.Peers, n)
	}
	return b, nil
}

// EncodeFindValueReq serializes a FindValueReq body.
func EncodeFindValueReq(b FindValueReq) []byte {
	buf := make([]byte, id.Size)
	copy(buf, b.Key[:])
	return buf
}

// DecodeFindValueReq parses a FindValueReq body.
func DecodeFindValueReq(buf []byte) (FindValueReq, error) {
	var b FindValueReq
	if len(buf) < id.Size {
		return b, errs.ErrTruncated
	}
	copy(b.Key[:], buf[:id.Size])
	return b, nil
}

func encodeBytes(dst []byte, v []byte) []byte {
	head := make([]byte, 4)
	putUint32(head, uint32(len(v)))
	dst = append(dst, head...)
	return append(dst, v...)
}

func decodeBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, errs.ErrTruncated
	}
	n := getUint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, errs.ErrTruncated
	}
	v := make([]byte, n)
	copy(v, buf[:n])
	return v, buf[n:], nil
}

// EncodeFindValueResp serializes a FindValueResp body.
func EncodeFindValueResp(b FindValueResp) []byte {
	return encodeBytes(nil, b.Value)
}

// DecodeFindValueResp parses a FindValueResp body.
func DecodeFindValueResp(buf []byte) (FindValueResp, error) {
	var b FindValueResp
	v, _, err := decodeBytes(buf)
	if err != nil {
		return b, err
	}
	b.Value = v
	return b, nil
}

// EncodeStoreReq serializes a StoreReq body.
func EncodeStoreReq(b StoreReq) []byte {
	buf := make([]byte, id.Size)
	copy(buf, b.Key[:])
	return encodeBytes(buf, b.Value)
}

// DecodeStoreReq parses a StoreReq body.
func DecodeStoreReq(buf []byte) (StoreReq, error) {
	var b StoreReq
	if len(buf) < id.Size {
		return b, errs.ErrTruncated
	}
	copy(b.Key[:], buf[:id.Size])
	v, _, err := decodeBytes(buf[id.Size:])
	if err != nil {
		return b, err
	}
	b.Value = v
	return b, nil
}

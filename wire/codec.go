package wire

import (
	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/params"
)

// Message is a fully decoded datagram: its header plus the typed body.
// Body holds one of FindNodeReq, FindNodeResp, FindValueReq,
// FindValueResp, StoreReq, or nil for the header-only PingReq/PingResp.
type Message struct {
	Header Header
	Body   interface{}
}

// Encode serializes header and body into one datagram. body must be
// nil for PingReq/PingResp and the matching typed struct otherwise.
func Encode(h Header, body interface{}) ([]byte, error) {
	buf := EncodeHeader(h)
	var payload []byte
	switch b := body.(type) {
	case nil:
		if h.Type != PingReq && h.Type != PingResp {
			return nil, errs.ErrMalformed
		}
	case FindNodeReq:
		payload = EncodeFindNodeReq(b)
	case FindNodeResp:
		payload = EncodeFindNodeResp(b)
	case FindValueReq:
		payload = EncodeFindValueReq(b)
	case FindValueResp:
		payload = EncodeFindValueResp(b)
	case StoreReq:
		payload = EncodeStoreReq(b)
	default:
		return nil, errs.ErrMalformed
	}
	buf = append(buf, payload...)
	if len(buf) > params.SafePayloadSize {
		return nil, errs.ErrTooLarge
	}
	return buf, nil
}

// Decode parses a full datagram into its header and typed body.
func Decode(buf []byte) (Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, err
	}
	rest := buf[HeaderSize:]
	var body interface{}
	switch h.Type {
	case PingReq, PingResp:
		body = nil
	case FindNodeReq:
		body, err = DecodeFindNodeReq(rest)
	case FindNodeResp:
		body, err = DecodeFindNodeResp(rest)
	case FindValueReq:
		body, err = DecodeFindValueReq(rest)
	case FindValueResp:
		body, err = DecodeFindValueResp(rest)
	case StoreReq:
		body, err = DecodeStoreReq(rest)
	default:
		return Message{}, errs.ErrMalformed
	}
	if err != nil {
		return Message{}, err
	}
	return Message{Header: h, Body: body}, nil
}

// NewToken draws a fresh, uniformly random correlation token.
func NewToken() id.Id160 {
	return id.Random()
}

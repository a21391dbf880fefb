package wire_test

import (
	"net"
	"testing"

	"github.com/MOACChain/knode/errs"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(t wire.Type) wire.Header {
	return wire.Header{Version: wire.Version, Type: t, Source: id.Random(), Token: id.Random()}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := header(wire.FindNodeReq)
	buf := wire.EncodeHeader(h)
	require.Len(t, buf, wire.HeaderSize)
	got, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderBadVersion(t *testing.T) {
	h := header(wire.PingReq)
	buf := wire.EncodeHeader(h)
	buf[0] = (2 << 4) | byte(wire.PingReq)
	_, err := wire.DecodeHeader(buf)
	assert.ErrorIs(t, err, errs.ErrProtocolVersion)
}

func TestHeaderTruncated(t *testing.T) {
	h := header(wire.PingReq)
	buf := wire.EncodeHeader(h)
	_, err := wire.DecodeHeader(buf[:len(buf)-1])
	assert.ErrorIs(t, err, errs.ErrTruncated)
}

func TestPingRoundTrip(t *testing.T) {
	h := header(wire.PingReq)
	buf, err := wire.Encode(h, nil)
	require.NoError(t, err)
	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, msg.Header)
	assert.Nil(t, msg.Body)
}

func TestFindNodeReqRoundTrip(t *testing.T) {
	h := header(wire.FindNodeReq)
	body := wire.FindNodeReq{Target: id.Random()}
	buf, err := wire.Encode(h, body)
	require.NoError(t, err)
	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, body, msg.Body)
}

func TestFindNodeRespRoundTripV4AndV6(t *testing.T) {
	h := header(wire.FindNodeResp)
	body := wire.FindNodeResp{Peers: []wire.Node{
		{ID: id.Random(), Addr: netio.Endpoint{IP: net.ParseIP("1.2.3.4").To4(), Port: 30303}},
		{ID: id.Random(), Addr: netio.Endpoint{IP: net.ParseIP("::1"), Port: 9999}},
	}}
	buf, err := wire.Encode(h, body)
	require.NoError(t, err)
	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	got := msg.Body.(wire.FindNodeResp)
	require.Len(t, got.Peers, 2)
	assert.Equal(t, body.Peers[0].ID, got.Peers[0].ID)
	assert.True(t, body.Peers[0].Addr.IP.Equal(got.Peers[0].Addr.IP))
	assert.Equal(t, body.Peers[0].Addr.Port, got.Peers[0].Addr.Port)
	assert.True(t, body.Peers[1].Addr.IP.Equal(got.Peers[1].Addr.IP))
}

func TestFindValueAndStoreRoundTrip(t *testing.T) {
	fv := wire.FindValueResp{Value: []byte{0x01, 0x02}}
	buf, err := wire.Encode(header(wire.FindValueResp), fv)
	require.NoError(t, err)
	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, fv, msg.Body)

	st := wire.StoreReq{Key: id.Random(), Value: []byte("hello world")}
	buf, err = wire.Encode(header(wire.StoreReq), st)
	require.NoError(t, err)
	msg, err = wire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, st, msg.Body)
}

func TestTruncateByOneByteYieldsTruncated(t *testing.T) {
	st := wire.StoreReq{Key: id.Random(), Value: []byte("payload")}
	buf, err := wire.Encode(header(wire.StoreReq), st)
	require.NoError(t, err)
	_, err = wire.Decode(buf[:len(buf)-1])
	assert.ErrorIs(t, err, errs.ErrTruncated)
}

func TestMalformedTypeTag(t *testing.T) {
	h := header(wire.PingReq)
	buf := wire.EncodeHeader(h)
	buf[0] = (wire.Version << 4) | 0x0f
	_, err := wire.DecodeHeader(buf)
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

package id_test

import (
	"testing"

	"github.com/MOACChain/knode/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	const hexStr = "0102030405060708090a0b0c0d0e0f1011121314"
	got, err := id.FromHex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, hexStr, got.Hex())

	back, err := id.FromHex(got.Hex())
	require.NoError(t, err)
	assert.Equal(t, got, back)
}

func TestHexCaseInsensitive(t *testing.T) {
	lower, err := id.FromHex("0102030405060708090a0b0c0d0e0f1011121314")
	require.NoError(t, err)
	upper, err := id.FromHex("0102030405060708090A0B0C0D0E0F1011121314")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestHexErrors(t *testing.T) {
	_, err := id.FromHex("zz")
	assert.Error(t, err)
	_, err = id.FromHex("01")
	assert.Error(t, err)
}

func TestXorAndLogDistanceValues(t *testing.T) {
	a := id.FromBytes([]byte{0x01})
	b := id.FromBytes([]byte{0x03})
	dist := a.Xor(b)
	want := id.FromBytes([]byte{0x02})
	assert.Equal(t, want, dist)
	assert.Equal(t, 158, dist.LeadingZeroBits())
	assert.Equal(t, 1, a.LogDistance(b))
}

func TestXorMetricProperties(t *testing.T) {
	a, b, c := id.Random(), id.Random(), id.Random()

	assert.Equal(t, id.Min, a.Xor(a))
	assert.Equal(t, a.Xor(b), b.Xor(a))
	assert.Equal(t, a.Xor(c), a.Xor(b).Xor(b.Xor(c)))
}

func TestMaxMin(t *testing.T) {
	assert.True(t, id.Min.Less(id.Max))
	assert.Equal(t, 0, id.Max.LeadingZeroBits())
	assert.Equal(t, id.Bits, id.Min.LeadingZeroBits())
}

func TestHasPrefixAndBit(t *testing.T) {
	self := id.FromBytes(append([]byte{0x80}, make([]byte, id.Size-1)...)) // 1000....
	assert.Equal(t, 1, self.Bit(0))
	assert.Equal(t, 0, self.Bit(1))

	withBit1 := id.Min.WithBit(0, 1)
	assert.True(t, withBit1.HasPrefix(self, 1))

	other := id.FromBytes(append([]byte{0x40}, make([]byte, id.Size-1)...)) // 0100....
	assert.False(t, other.HasPrefix(self, 1))
	assert.True(t, other.HasPrefix(self, 0))
}

func TestBitStringLength(t *testing.T) {
	r := id.Random()
	assert.Len(t, r.BitString(), id.Bits)
}

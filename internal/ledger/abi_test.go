package ledger

import (
	"encoding/hex"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddress(t *testing.T) {
	encoded := encodeAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	require.Len(t, encoded, 32)
	assert.Equal(t, "000000000000000000000000833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		hex.EncodeToString(encoded))
}

func TestEncodeDecodeInt(t *testing.T) {
	original := sdkmath.NewInt(1_234_567_890)
	encoded := encodeInt(original)
	require.Len(t, encoded, 32)
	assert.Equal(t, original, decodeInt(encoded))
}

func TestEncodeCall(t *testing.T) {
	calldata := encodeCall(selectorUserPosition,
		encodeAddress("0x1111111111111111111111111111111111111111"),
		encodeAddress("0x2222222222222222222222222222222222222222"))

	require.Len(t, calldata, 4+2*32)
	assert.Equal(t, selectorUserPosition, calldata[:4])
}

func TestWord(t *testing.T) {
	data := append(encodeInt(sdkmath.NewInt(7)), encodeInt(sdkmath.NewInt(11))...)

	w0, err := word(data, 0)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(7), decodeInt(w0))

	w1, err := word(data, 1)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(11), decodeInt(w1))

	_, err = word(data, 2)
	assert.Error(t, err)
}

func TestDecodeDynamicArray(t *testing.T) {
	// Tuple with one dynamic array at word 0: offset, then length 2, then the
	// elements.
	data := make([]byte, 0, 4*32)
	data = append(data, encodeInt(sdkmath.NewInt(32))...) // offset
	data = append(data, encodeInt(sdkmath.NewInt(2))...)  // length
	data = append(data, encodeInt(sdkmath.NewInt(100))...)
	data = append(data, encodeInt(sdkmath.NewInt(200))...)

	elements, err := decodeDynamicArray(data, 0)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, sdkmath.NewInt(100), decodeInt(elements[0]))
	assert.Equal(t, sdkmath.NewInt(200), decodeInt(elements[1]))
}

func TestDecodeString(t *testing.T) {
	// Standard ABI string encoding: offset, length, padded bytes.
	data := make([]byte, 3*32)
	copy(data[0:32], encodeInt(sdkmath.NewInt(32)))
	copy(data[32:64], encodeInt(sdkmath.NewInt(4)))
	copy(data[64:], []byte("USDC"))

	s, err := decodeString(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "USDC", s)
}

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint("0x1a4")
	require.NoError(t, err)
	assert.Equal(t, uint64(420), n)

	n, err = parseHexUint("0x")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

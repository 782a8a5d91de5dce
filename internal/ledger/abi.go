package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Pre-computed function selectors (first 4 bytes of keccak256 of signature).
var (
	// Alioth vault contract
	selectorPreviewDeposit  = mustDecodeHex("b8f82b26") // previewDeposit(address,uint256)
	selectorPreviewWithdraw = mustDecodeHex("bbc6f1dc") // previewWithdraw(address,uint256)
	selectorDeposit         = mustDecodeHex("8b6099db") // deposit(address,uint256,uint256,address)
	selectorWithdraw        = mustDecodeHex("16762eed") // withdraw(address,uint256,uint256,address)
	selectorUserPosition    = mustDecodeHex("92a576e6") // getUserPosition(address,address)
	selectorUserPortfolio   = mustDecodeHex("1edb27e9") // getUserPortfolio(address)
	selectorTokenStats      = mustDecodeHex("ca88d5c5") // getTokenStats(address)
	selectorTokenSupported  = mustDecodeHex("75151b63") // isTokenSupported(address)
	selectorRebalance       = mustDecodeHex("21327248") // rebalance(address,address,uint256,address)

	// ERC20
	selectorDecimals = mustDecodeHex("313ce567") // decimals()
	selectorSymbol   = mustDecodeHex("95d89b41") // symbol()
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex: %s", s))
	}
	return b
}

// encodeAddress pads a 20-byte Ethereum address to 32 bytes (left-padded with zeros).
func encodeAddress(addr string) []byte {
	addr = strings.TrimPrefix(addr, "0x")
	b, _ := hex.DecodeString(addr)
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// encodeInt encodes an sdkmath.Int as a 32-byte left-padded uint256 word.
func encodeInt(n sdkmath.Int) []byte {
	padded := make([]byte, 32)
	b := n.BigInt().Bytes()
	copy(padded[32-len(b):], b)
	return padded
}

// decodeInt decodes a 32-byte big-endian word into an sdkmath.Int.
func decodeInt(data []byte) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).SetBytes(data))
}

// decodeAddress extracts the trailing 20 bytes of a 32-byte word.
func decodeAddress(data []byte) string {
	return "0x" + hex.EncodeToString(data[12:32])
}

// word returns the i-th 32-byte word of an ABI-encoded result.
func word(data []byte, i int) ([]byte, error) {
	if len(data) < (i+1)*32 {
		return nil, fmt.Errorf("abi result too short: need word %d, have %d bytes", i, len(data))
	}
	return data[i*32 : (i+1)*32], nil
}

func encodeCall(selector []byte, words ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, selector...)
	for _, w := range words {
		data = append(data, w...)
	}
	return data
}

// decodeDynamicArray reads a dynamic array of 32-byte words given the offset
// word index in the top-level tuple.
func decodeDynamicArray(data []byte, offsetWord int) ([][]byte, error) {
	ow, err := word(data, offsetWord)
	if err != nil {
		return nil, err
	}
	offset := new(big.Int).SetBytes(ow).Int64()
	if offset < 0 || offset+32 > int64(len(data)) {
		return nil, fmt.Errorf("abi array offset %d out of range", offset)
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Int64()
	start := offset + 32
	if start+length*32 > int64(len(data)) {
		return nil, fmt.Errorf("abi array of %d elements exceeds result length", length)
	}
	out := make([][]byte, length)
	for i := int64(0); i < length; i++ {
		out[i] = data[start+i*32 : start+(i+1)*32]
	}
	return out, nil
}

// Exported aliases for read-only callers outside this package (rate sources
// issue their own eth_call reads against pool contracts).

// Selector decodes a pre-computed 4-byte function selector from hex.
func Selector(hexStr string) []byte { return mustDecodeHex(hexStr) }

// EncodeCall assembles calldata from a selector and 32-byte argument words.
func EncodeCall(selector []byte, words ...[]byte) []byte { return encodeCall(selector, words...) }

// EncodeAddress pads an Ethereum address to a 32-byte word.
func EncodeAddress(addr string) []byte { return encodeAddress(addr) }

// Word returns the i-th 32-byte word of an ABI-encoded result.
func Word(data []byte, i int) ([]byte, error) { return word(data, i) }

// DecodeInt decodes a 32-byte big-endian word into an sdkmath.Int.
func DecodeInt(data []byte) sdkmath.Int { return decodeInt(data) }

// decodeString reads a dynamic string given the offset word index.
func decodeString(data []byte, offsetWord int) (string, error) {
	ow, err := word(data, offsetWord)
	if err != nil {
		return "", err
	}
	offset := new(big.Int).SetBytes(ow).Int64()
	if offset < 0 || offset+32 > int64(len(data)) {
		return "", fmt.Errorf("abi string offset %d out of range", offset)
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Int64()
	start := offset + 32
	if start+length > int64(len(data)) {
		return "", fmt.Errorf("abi string of %d bytes exceeds result length", length)
	}
	return string(data[start : start+length]), nil
}

package lsk

import (
	"fmt"

	"github.com/eldkv/sealbox/store/endian"
	"github.com/eldkv/sealbox/store/types"
)

// recordHeaderSize is order(8) + size(8) + reserved(16).
const recordHeaderSize = 32

// recordDataSize is how much of each 4064-byte payload a record header
// leaves for the encoded (key, value) slice or terminator snapshot.
const recordDataSize = types.PayloadSize - recordHeaderSize

// continuationSize is the sentinel size value marking a non-head block of
// a run: 2^64 - 1.
const continuationSize = ^uint64(0)

// encodeBlock packs order, size, and up to recordDataSize bytes of data
// into one full 4064-byte plaintext payload, zero-padding any remainder.
func encodeBlock(order types.Order, size uint64, data []byte) []byte {
	if len(data) > recordDataSize {
		panic(fmt.Sprintf("lsk: block data %d exceeds %d", len(data), recordDataSize))
	}
	payload := make([]byte, types.PayloadSize)
	endian.PutU64(payload[0:8], uint64(order))
	endian.PutU64(payload[8:16], size)
	copy(payload[recordHeaderSize:], data)
	return payload
}

// decodeBlock unpacks a plaintext payload into its header fields and the
// full recordDataSize data region (callers slice it down using size).
func decodeBlock(payload []byte) (order types.Order, size uint64, data []byte) {
	order = types.Order(endian.U64(payload[0:8]))
	size = endian.U64(payload[8:16])
	data = payload[recordHeaderSize:]
	return
}

// runLength reports how many blocks a head block of byteSize bytes needs.
func runLength(byteSize int) int {
	if byteSize == 0 {
		return 1
	}
	return (byteSize + recordDataSize - 1) / recordDataSize
}

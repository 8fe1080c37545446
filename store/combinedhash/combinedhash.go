// Package combinedhash implements the combined hash: an XOR-accumulated,
// salt-keyed HMAC-SHA-512 of (order, block_index) tuples. Because XOR is
// commutative and self-inverse, combining the same tuple twice cancels it,
// giving an order-independent insert/delete-by-XOR set hash, built on
// stdlib crypto/hmac + crypto/sha512 (no third-party HMAC implementation
// appears anywhere in the pack).
package combinedhash

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"

	"github.com/eldkv/sealbox/store/endian"
	"github.com/eldkv/sealbox/store/types"
)

// Size is the width of the accumulator: one SHA-512 digest.
const Size = sha512.Size

// Hash is the running XOR accumulator, keyed with a salt at construction.
type Hash struct {
	salt []byte
	acc  [Size]byte
}

// New returns a zeroed Hash keyed with salt.
func New(salt []byte) *Hash {
	return &Hash{salt: salt}
}

// Combine computes HMAC(salt, bytes) and XORs it into the accumulator.
func (h *Hash) Combine(data []byte) {
	mac := hmac.New(sha512.New, h.salt)
	mac.Write(data)
	sum := mac.Sum(nil)
	for i := range h.acc {
		h.acc[i] ^= sum[i]
	}
}

// CombineRun XORs in the contribution of one live head block: sixteen
// bytes of order ‖ block_index, both big-endian.
func (h *Hash) CombineRun(order types.Order, block types.BlockIndex) {
	var tuple [16]byte
	endian.PutU64(tuple[0:8], uint64(order))
	endian.PutU64(tuple[8:16], uint64(block))
	h.Combine(tuple[:])
}

// Check reports whether the accumulator equals other, using a
// constant-time comparison so a caller verifying an on-disk snapshot does
// not leak timing information about where the mismatch is.
func (h *Hash) Check(other [Size]byte) bool {
	return subtle.ConstantTimeCompare(h.acc[:], other[:]) == 1
}

// Dump copies the accumulator's current value.
func (h *Hash) Dump() [Size]byte {
	return h.acc
}

// Reset zeroes the accumulator, keeping the same salt.
func (h *Hash) Reset() {
	for i := range h.acc {
		h.acc[i] = 0
	}
}

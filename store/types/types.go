// Package types holds the scalar types shared by every layer of sealbox,
// the way github.com/ipld/go-storethehash/store/types does for the teacher.
package types

// PhysicalBlockSize is the size in bytes of one physical block on disk:
// nonce(16) + ciphertext(4064) + tag(16).
const PhysicalBlockSize = 4096

// PayloadSize is the size in bytes of one sealed block's plaintext payload.
const PayloadSize = 4064

// BlockIndex is the physical, stable index of a sealed block within the
// container file. Invariant 1 bounds the container to 2^32-1 blocks, so a
// BlockIndex always fits in 32 bits even though offsets are carried as
// 64-bit quantities on the wire.
type BlockIndex uint32

// NoBlock is the sentinel BlockIndex meaning "no block", used for
// last_term_block before any terminator has ever been written.
const NoBlock BlockIndex = 1<<32 - 1

// Order is the monotonically increasing, 1-based sequence number assigned
// to every written block. Order 0 means "unassigned".
type Order uint64

// Work is a byte count of buffered-but-not-yet-flushed data, shaped like
// the teacher's store/types.Work. No package in this module refers to it.
type Work uint64

// ContainerID is the externally supplied identifier mixed into the AAD of
// every sealed block, binding it to one archive.
type ContainerID uint64

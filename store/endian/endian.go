// Package endian is the fixed big-endian scalar wrapper described in §4.1:
// every integer that crosses the disk boundary in sealbox is big-endian,
// independent of host byte order. The teacher reaches for encoding/binary
// inline wherever it needs a scalar on the wire (store/freelist/freelist.go,
// store/index/index.go); this package centralizes that so every subsystem
// spells it the same way.
package endian

import "encoding/binary"

// U16 loads a big-endian uint16 from the front of b.
func U16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// PutU16 stores v as a big-endian uint16 at the front of b.
func PutU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

// U32 loads a big-endian uint32 from the front of b.
func U32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// PutU32 stores v as a big-endian uint32 at the front of b.
func PutU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// U64 loads a big-endian uint64 from the front of b.
func U64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// PutU64 stores v as a big-endian uint64 at the front of b.
func PutU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// Scalar is a fixed-size value that loads from and stores to a big-endian
// buffer of exactly Size() bytes. The cipher AAD and the LSK block header
// do not go through Scalar: store/aead packs its AAD with its own
// big-endian helper, and lsk calls PutU64/U64 directly.
type Scalar interface {
	Size() int
	Load(b []byte)
	Store(b []byte)
}

// U64Value is a Scalar-compatible big-endian uint64, the transparent scalar
// named in §4.1: assigning to Value uses host byte order; Load/Store convert.
type U64Value struct {
	Value uint64
}

func (v U64Value) Size() int { return 8 }

func (v *U64Value) Load(b []byte) { v.Value = U64(b) }

func (v U64Value) Store(b []byte) { PutU64(b, v.Value) }

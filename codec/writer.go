package codec

import (
	"math"

	"github.com/eldkv/sealbox/store/endian"
)

// Writer emits tagged values into a growing byte buffer. Go slices already
// grow without the caller pre-sizing them, so Writer emits directly instead
// of requiring the two-pass preallocate-then-write dance a fixed-buffer
// language needs; ProbeSize below still offers the size-only pass the
// format's "probe" mode names, for callers that want an exact length
// before committing to a destination.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded document so far.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteMeta emits an ASCII metadata tag (bytes in [0x20, 0xFF]) ahead of
// the next value. Readers that don't care about metadata skip over it.
func (w *Writer) WriteMeta(name string) {
	w.buf = append(w.buf, []byte(name)...)
}

// BeginDoc starts a nested document.
func (w *Writer) BeginDoc() { w.buf = append(w.buf, byte(TagDoc)) }

// EndDoc closes the innermost open document.
func (w *Writer) EndDoc() { w.buf = append(w.buf, byte(TagEnd)) }

// WriteBool writes a boolean; false uses the same zero-default tag as an
// unset field, to save space.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, byte(TagTrue))
	} else {
		w.buf = append(w.buf, byte(TagFalse))
	}
}

// WriteNull writes an explicit null placeholder for a deleted/absent field.
func (w *Writer) WriteNull() { w.buf = append(w.buf, byte(TagNull)) }

// WriteU8 writes a byte value, using the zero-default tag when v == 0.
func (w *Writer) WriteU8(v uint8) {
	if v == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	w.buf = append(w.buf, byte(TagU8), v)
}

// WriteU32 writes a uint32 value, using the zero-default tag when v == 0.
func (w *Writer) WriteU32(v uint32) {
	if v == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	var b [4]byte
	endian.PutU32(b[:], v)
	w.buf = append(w.buf, byte(TagU32))
	w.buf = append(w.buf, b[:]...)
}

// WriteU64 writes a uint64 value, using the zero-default tag when v == 0.
func (w *Writer) WriteU64(v uint64) {
	if v == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	var b [8]byte
	endian.PutU64(b[:], v)
	w.buf = append(w.buf, byte(TagU64))
	w.buf = append(w.buf, b[:]...)
}

// WriteF32 writes a float32 using the u32 value tag, bit-reinterpreted.
func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

// WriteF64 writes a float64 using the u64 value tag, bit-reinterpreted.
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteU8Bytes writes a byte run whose length fits in one byte.
func (w *Writer) WriteU8Bytes(b []byte) {
	if len(b) == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	w.buf = append(w.buf, byte(TagU8Bytes), byte(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteU32Bytes writes a byte run with a u32 length prefix.
func (w *Writer) WriteU32Bytes(b []byte) {
	if len(b) == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	var sz [4]byte
	endian.PutU32(sz[:], uint32(len(b)))
	w.buf = append(w.buf, byte(TagU32Bytes))
	w.buf = append(w.buf, sz[:]...)
	w.buf = append(w.buf, b...)
}

// WriteU64Bytes writes a byte run with a u64 length prefix.
func (w *Writer) WriteU64Bytes(b []byte) {
	if len(b) == 0 {
		w.buf = append(w.buf, byte(TagFalse))
		return
	}
	var sz [8]byte
	endian.PutU64(sz[:], uint64(len(b)))
	w.buf = append(w.buf, byte(TagU64Bytes))
	w.buf = append(w.buf, sz[:]...)
	w.buf = append(w.buf, b...)
}

// WriteBitSet packs bits into bytes and elides trailing all-zero bytes.
func (w *Writer) WriteBitSet(bits []bool) {
	packed := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			packed[i/8] |= 1 << (uint(i) % 8)
		}
	}
	end := len(packed)
	for end > 0 && packed[end-1] == 0 {
		end--
	}
	w.WriteU32Bytes(packed[:end])
}

// ProbeSize runs f against a throwaway Writer and reports the number of
// bytes it would emit: a way to compute output size without committing to
// a destination.
func ProbeSize(f func(w *Writer)) int {
	w := NewWriter()
	f(w)
	return len(w.buf)
}

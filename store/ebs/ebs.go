// Package ebs is the encrypted block store view: it composes a file
// backend and an authenticated block cipher into a numbered array of
// independently sealed 4064-byte payload blocks, the thing that turns a
// raw os.File into addressable encrypted records. Every block is
// fixed-size; nothing above this layer needs variable-length framing.
package ebs

import (
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/eldkv/sealbox/store/aead"
	"github.com/eldkv/sealbox/store/file"
	"github.com/eldkv/sealbox/store/types"
)

var log = logging.Logger("sealbox/ebs")

// maxStreamExtend bounds how far a single streaming Write may grow the
// file: more than 1 GiB in one call is refused.
const maxStreamExtend = 1 << 30

// View is the encrypted block array. It is not internally synchronized:
// LSK is its sole user, under LSK's single guard.
type View struct {
	file  *file.File
	enc   *aead.Cipher
	count uint64 // cached block count; file_size / 4096

	mu sync.Mutex // guards scratch only; not a substitute for LSK's guard
	scratch [types.PayloadSize]byte
}

// Open attaches a View to an already-open file backend, keyed with a
// 256-bit AES key. The cached block count is derived from the current
// file size.
func Open(f *file.File, key [aead.KeySize]byte) (*View, error) {
	enc, err := aead.New(key)
	if err != nil {
		return nil, err
	}
	return open(f, enc)
}

// OpenWithCipher attaches a View to an already-open file backend using a
// caller-constructed Cipher, e.g. aead.NewWithRand for a deterministic
// test nonce source.
func OpenWithCipher(f *file.File, enc *aead.Cipher) (*View, error) {
	return open(f, enc)
}

func open(f *file.File, enc *aead.Cipher) (*View, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	return &View{
		file:  f,
		enc:   enc,
		count: uint64(size) / types.PhysicalBlockSize,
	}, nil
}

// Size returns the logical payload size of the container: count() * 4064.
func (v *View) Size() uint64 { return v.count * types.PayloadSize }

// Count returns the number of sealed blocks currently in the container.
func (v *View) Count() uint64 { return v.count }

func blockOffset(i types.BlockIndex) int64 {
	return int64(i) * types.PhysicalBlockSize
}

// ReadBlock decrypts and verifies block i, returning its 4064-byte
// plaintext payload. containerID must match the value the block was
// written with, or verification fails (the AAD binds both containerID and
// the block's own position).
func (v *View) ReadBlock(i types.BlockIndex, containerID types.ContainerID) ([]byte, error) {
	if uint64(i) >= v.count {
		return nil, fmt.Errorf("%w: block %d >= count %d", types.ErrOutOfRange, i, v.count)
	}
	var sealed [types.PhysicalBlockSize]byte
	if err := v.file.ReadAt(sealed[:], blockOffset(i)); err != nil {
		return nil, err
	}
	var nonce [aead.NonceSize]byte
	copy(nonce[:], sealed[:aead.NonceSize])
	aad := aead.AAD(containerID, i)
	plaintext, err := v.enc.Open(nonce, aad[:], sealed[aead.NonceSize:])
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// WriteBlock seals payload (exactly 4064 bytes) under a fresh random nonce
// and writes it to block i. If i == count(), the container grows by one
// block. Rewriting an existing block's index with new or identical
// plaintext always produces a distinct ciphertext because the nonce is
// drawn fresh every call.
func (v *View) WriteBlock(i types.BlockIndex, payload []byte, containerID types.ContainerID) error {
	if uint64(i) > v.count {
		return fmt.Errorf("%w: block %d > count %d", types.ErrOutOfRange, i, v.count)
	}
	if len(payload) != types.PayloadSize {
		return fmt.Errorf("%w: payload size %d != %d", types.ErrOutOfRange, len(payload), types.PayloadSize)
	}
	nonce, err := v.enc.RandomNonce()
	if err != nil {
		return err
	}
	aad := aead.AAD(containerID, i)
	sealed := v.enc.Seal(nonce, aad[:], payload)

	var block [types.PhysicalBlockSize]byte
	copy(block[:aead.NonceSize], nonce[:])
	copy(block[aead.NonceSize:], sealed)

	if _, err := v.file.WriteAt(block[:], blockOffset(i)); err != nil {
		return err
	}
	if uint64(i) == v.count {
		v.count++
	}
	return nil
}

// Trunc resizes the container to hold exactly new size bytes worth of
// physical blocks, rounding up. Shrinking is a plain filesystem truncate.
// Growing writes sealed all-zero plaintext blocks one at a time, each with
// a fresh nonce, so the newly grown region is indistinguishable from
// random data on disk.
func (v *View) Trunc(bytes int64) (int64, error) {
	newCount := uint64(bytes) / types.PhysicalBlockSize
	if bytes%types.PhysicalBlockSize != 0 {
		newCount++
	}
	if newCount <= v.count {
		if err := v.file.Trunc(int64(newCount) * types.PhysicalBlockSize); err != nil {
			return 0, err
		}
		v.count = newCount
		return int64(v.count) * types.PhysicalBlockSize, nil
	}

	var zero [types.PayloadSize]byte
	for i := v.count; i < newCount; i++ {
		if err := v.WriteBlock(types.BlockIndex(i), zero[:], 0); err != nil {
			return 0, err
		}
	}
	return int64(v.count) * types.PhysicalBlockSize, nil
}

// Read performs a partial-block read-modify-through, decrypting whichever
// blocks overlap [offset, offset+len(buf)) into buf.
func (v *View) Read(offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		blockIdx := types.BlockIndex(pos / types.PayloadSize)
		within := int(pos % types.PayloadSize)
		plaintext, err := v.ReadBlock(blockIdx, 0)
		if err != nil {
			return err
		}
		n := copy(remaining, plaintext[within:])
		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// Write performs a partial-block read-modify-write, through an internal
// plaintext scratch buffer scrubbed after use, extending the container via
// Trunc first if the target block does not exist yet. A single call may
// not extend the file by more than 1 GiB.
func (v *View) Write(offset int64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	endBlock := types.BlockIndex((offset + int64(len(data)) - 1) / types.PayloadSize)
	neededBlocks := uint64(endBlock) + 1
	if neededBlocks > v.count {
		extendBytes := int64(neededBlocks-v.count) * types.PhysicalBlockSize
		if extendBytes > maxStreamExtend {
			return 0, fmt.Errorf("%w: extend by %d exceeds 1 GiB limit", types.ErrOutOfRange, extendBytes)
		}
		if _, err := v.Trunc(int64(neededBlocks) * types.PhysicalBlockSize); err != nil {
			return 0, err
		}
	}

	v.mu.Lock()
	defer func() {
		for i := range v.scratch {
			v.scratch[i] = 0
		}
		v.mu.Unlock()
	}()

	written := 0
	remaining := data
	pos := offset
	for len(remaining) > 0 {
		blockIdx := types.BlockIndex(pos / types.PayloadSize)
		within := int(pos % types.PayloadSize)

		if within != 0 || len(remaining) < types.PayloadSize {
			existing, err := v.ReadBlock(blockIdx, 0)
			if err != nil {
				return written, err
			}
			copy(v.scratch[:], existing)
		}
		n := copy(v.scratch[within:], remaining)
		if err := v.WriteBlock(blockIdx, v.scratch[:], 0); err != nil {
			return written, err
		}
		remaining = remaining[n:]
		pos += int64(n)
		written += n
	}
	return written, nil
}

// Alloc delegates to the file backend.
func (v *View) Alloc(bytes int64) error { return v.file.Alloc(bytes) }

// Flush delegates to the file backend.
func (v *View) Flush() error { return v.file.Flush() }

// SetDelete delegates to the file backend.
func (v *View) SetDelete() error { return v.file.SetDelete() }

// Close implements the container's destructor semantics: if it
// holds any blocks, truncate the file to exactly count*4096 bytes
// (dropping any dangling bytes past the last sealed block); if the
// container is empty, try to delete it, falling back to a zero-length
// truncate. Internal buffers are scrubbed either way.
func (v *View) Close() error {
	v.mu.Lock()
	for i := range v.scratch {
		v.scratch[i] = 0
	}
	v.mu.Unlock()

	if v.count > 0 {
		if err := v.file.Trunc(int64(v.count) * types.PhysicalBlockSize); err != nil {
			log.Warnw("failed to truncate container on close", "err", err)
		}
	} else {
		if err := v.file.SetDelete(); err != nil {
			log.Warnw("failed to delete empty container", "err", err)
			if terr := v.file.Trunc(0); terr != nil {
				log.Warnw("failed to truncate empty container", "err", terr)
			}
		}
	}
	return v.file.Close()
}

// Package lsk is the log-structured keyed map: a copy-on-write persistence
// layer over an encrypted block store, providing atomic multi-key updates,
// three-pass crash recovery, and a tamper-evident combined hash of the
// live key set. It is the logical layer above store/ebs's physical one,
// grounded on the teacher's store/index + store/primary pairing as "the
// thing that turns raw blocks into a keyed map with commit/recover/GC" —
// generalized from the teacher's on-disk hash-bucket index (which needs a
// secondary index file) to block-run scanning recovery (the map lives
// entirely in memory, rebuilt from the blocks themselves on every open).
package lsk

import (
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/eldkv/sealbox/codec"
	"github.com/eldkv/sealbox/stack"
	"github.com/eldkv/sealbox/store/combinedhash"
	"github.com/eldkv/sealbox/store/ebs"
	"github.com/eldkv/sealbox/store/freespace"
	"github.com/eldkv/sealbox/store/types"
)

var log = logging.Logger("sealbox/lsk")

// Encoder writes a value's fields into w.
type Encoder[T any] func(w *codec.Writer, v T)

// Decoder reads a value's fields from r.
type Decoder[T any] func(r *codec.Reader) (T, error)

// control is the bookkeeping record for one live key: its currently
// persisted run (load_*) and, while dirty, the run it is about to become
// (new_*). order == 0 marks a dirty, not-yet-persisted entry.
type control struct {
	order     types.Order
	loadBlock types.BlockIndex
	loadCount uint32
	newBlock  types.BlockIndex
	newCount  uint32
}

type entry[K comparable, V any] struct {
	key   K
	value V
	ctrl  control
}

const (
	flushOrderOptimistic int64 = -1
	flushOrderSalvage    int64 = -2
)

// Map is the commit/recover core: a keyed map persisted as block runs over
// an EBS view, guarded by one exclusive lock for the whole duration of any
// Read, Write, or Flush call.
type Map[K comparable, V any] struct {
	mu sync.Mutex

	view        *ebs.View
	containerID types.ContainerID
	salt        []byte

	encodeKey Encoder[K]
	decodeKey Decoder[K]
	encodeVal Encoder[V]
	decodeVal Decoder[V]

	entries       map[K]*entry[K, V]
	free          *freespace.Index
	hash          *combinedhash.Hash
	orderSeq      types.Order
	flushOrder    int64
	lastTermBlock types.BlockIndex
	errBits       ErrorBits

	// freedRuns carries block runs freed by Writer.Delete to the next
	// persist pass (run by both Write and Flush), without retaking the guard.
	freedRuns stack.Stack
}

// Codec bundles a value type's encode/decode pair for use with New.
type Codec[T any] struct {
	Encode Encoder[T]
	Decode Decoder[T]
}

// New attaches a Map to view and runs recovery (§4.8's reload), returning
// a handle ready for Read/Write/Flush. salt keys the combined hash.
func New[K comparable, V any](view *ebs.View, containerID types.ContainerID, salt []byte, keyCodec Codec[K], valCodec Codec[V]) (*Map[K, V], error) {
	m := &Map[K, V]{
		view:          view,
		containerID:   containerID,
		salt:          salt,
		encodeKey:     keyCodec.Encode,
		decodeKey:     keyCodec.Decode,
		encodeVal:     valCodec.Encode,
		decodeVal:     valCodec.Decode,
		hash:          combinedhash.New(salt),
		lastTermBlock: types.NoBlock,
	}
	if err := m.recover(); err != nil {
		return nil, fmt.Errorf("lsk: recovery: %w", err)
	}
	return m, nil
}

// ErrorBits returns the accumulated error bitfield.
func (m *Map[K, V]) ErrorBits() ErrorBits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errBits
}

// Len reports the number of live keys.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reader is a read-only view into the map, valid only during the callback
// passed to Read.
type Reader[K comparable, V any] struct {
	m *Map[K, V]
}

// Get performs a non-mutating lookup.
func (r *Reader[K, V]) Get(k K) (V, bool) {
	e, ok := r.m.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Keys returns every live key, in no particular order.
func (r *Reader[K, V]) Keys() []K {
	keys := make([]K, 0, len(r.m.entries))
	for k := range r.m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Read runs f under the map's guard with read-only access.
func (m *Map[K, V]) Read(f func(*Reader[K, V]) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(&Reader[K, V]{m: m})
}

// Writer is a mutable view into the map, valid only during the callback
// passed to Write or Flush.
type Writer[K comparable, V any] struct {
	m *Map[K, V]
}

// Get is a non-mutating lookup; it does not mark the entry dirty.
func (w *Writer[K, V]) Get(k K) (V, bool) {
	e, ok := w.m.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// markDirty cancels e's live combined-hash contribution, if it has one,
// and marks it unpersisted. The live contribution was added keyed on
// whichever block persistOne actually wrote to -- newBlock, whenever a
// scratch allocation exists -- not loadBlock, which only aliases it
// immediately after a finalize or recovery. Mirrors the original's
// dirty(): ctrl.new_count ? ctrl.new_block : ctrl.load_block.
func (w *Writer[K, V]) markDirty(e *entry[K, V]) {
	if e.ctrl.order != 0 {
		block := e.ctrl.loadBlock
		if e.ctrl.newCount > 0 {
			block = e.ctrl.newBlock
		}
		w.m.hash.CombineRun(e.ctrl.order, block)
		e.ctrl.order = 0
	}
}

// At returns a mutable pointer to k's value, inserting a zero value if k
// is absent, and marks the entry dirty.
func (w *Writer[K, V]) At(k K) *V {
	e, ok := w.m.entries[k]
	if !ok {
		e = &entry[K, V]{key: k}
		w.m.entries[k] = e
	}
	w.markDirty(e)
	return &e.value
}

// Add inserts k with the result of ifAbsent if k is not already present;
// if it is present, modify (when non-nil) is called on the existing
// value. The entry is marked dirty whenever it is newly inserted or
// modify is invoked.
func (w *Writer[K, V]) Add(k K, ifAbsent func() V, modify func(*V)) *V {
	e, ok := w.m.entries[k]
	if !ok {
		e = &entry[K, V]{key: k, value: ifAbsent()}
		w.m.entries[k] = e
		w.markDirty(e)
		return &e.value
	}
	if modify != nil {
		modify(&e.value)
		w.markDirty(e)
	}
	return &e.value
}

// Delete removes k from the map entirely, returning its now-orphaned
// on-disk run (if any) to the free-space index.
func (w *Writer[K, V]) Delete(k K) {
	e, ok := w.m.entries[k]
	if !ok {
		return
	}
	w.markDirty(e)
	if e.ctrl.newCount > 0 {
		w.m.freedRuns.Push(freedRun{block: e.ctrl.newBlock, count: uint64(e.ctrl.newCount)})
	}
	if e.ctrl.loadCount > 0 && e.ctrl.loadBlock != e.ctrl.newBlock {
		w.m.freedRuns.Push(freedRun{block: e.ctrl.loadBlock, count: uint64(e.ctrl.loadCount)})
	}
	delete(w.m.entries, k)
}

// Write runs f under the guard, then persists every dirty entry (but does
// not emit a terminator).
func (m *Map[K, V]) Write(f func(*Writer[K, V]) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	werr := f(&Writer[K, V]{m: m})
	if perr := m.persistDirty(); perr != nil && werr == nil {
		werr = perr
	}
	return werr
}

// Flush runs f under the guard, persists dirty entries, then emits a
// fresh terminator and durably flushes the view twice.
func (m *Map[K, V]) Flush(f func(*Writer[K, V]) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	werr := f(&Writer[K, V]{m: m})
	if ferr := m.finalize(); ferr != nil && werr == nil {
		werr = ferr
	}
	return werr
}

// FlushOnly is a standalone durability barrier: persist dirty entries and
// emit a terminator without running a caller-supplied mutation.
func (m *Map[K, V]) FlushOnly() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalize()
}

func (m *Map[K, V]) persistDirty() error {
	m.drainFreedRuns()
	var first error
	for _, e := range m.entries {
		if e.ctrl.order != 0 {
			continue
		}
		if err := m.persistOne(e); err != nil {
			log.Warnw("failed to persist entry", "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

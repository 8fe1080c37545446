// Package freespace is the free-space index: a sorted, auto-coalescing
// set of free intervals over the 32-bit block address space, with
// best-fit allocation. The teacher's store/freelist is an append-only
// on-disk log of individually freed records; it never needs to answer
// "find me N contiguous free slots", since the teacher's primary storage
// is append-only and never reuses space inline. This index answers
// exactly that question for LSK's block runs, and lives entirely in
// memory -- it is rebuilt by the recovery scan every time a container is
// opened, never persisted in its own right. The pool/Flush/
// outstanding-work bookkeeping the teacher's freelist needs for buffered
// disk writes therefore has no counterpart here.
package freespace

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/eldkv/sealbox/store/types"
)

// interval is a maximal run of free block indices: [start, start+length).
type interval struct {
	start  uint64
	length uint64
}

// Index tracks free block intervals. The zero value is the sentinel empty
// state meaning "the entire 2^32 address space is free" (invariant 5).
type Index struct {
	intervals []interval // sorted by start, disjoint, maximally coalesced
}

// New returns a freshly opened, never-populated Index: the sentinel state.
func New() *Index {
	return &Index{}
}

// spaceSize is the width of the address space the index covers.
const spaceSize = uint64(1) << 32

// AddFree marks [start, start+length) as free, inserting and coalescing
// with any adjacent interval on either side. Lengths that would overflow
// the 32-bit address space are clamped.
func (idx *Index) AddFree(start types.BlockIndex, length uint64) {
	if length == 0 {
		return
	}
	s := uint64(start)
	if s >= spaceSize {
		return
	}
	if s+length > spaceSize {
		length = spaceSize - s
	}

	// A single (0,0) dummy means "nothing free"; a real interval replaces it.
	if len(idx.intervals) == 1 && idx.intervals[0].length == 0 {
		idx.intervals = idx.intervals[:0]
	}

	i := sort.Search(len(idx.intervals), func(i int) bool {
		return idx.intervals[i].start >= s
	})

	merged := interval{start: s, length: length}

	// Coalesce with the left neighbor if it touches or overlaps.
	if i > 0 {
		left := idx.intervals[i-1]
		if left.start+left.length >= merged.start {
			if left.start+left.length > merged.start+merged.length {
				merged.length = left.start + left.length - left.start
			}
			newEnd := left.start + left.length
			if merged.start+merged.length > newEnd {
				newEnd = merged.start + merged.length
			}
			merged.start = left.start
			merged.length = newEnd - left.start
			i--
			idx.intervals = append(idx.intervals[:i], idx.intervals[i+1:]...)
		}
	}

	// Coalesce with every right neighbor that now touches or overlaps.
	for i < len(idx.intervals) {
		right := idx.intervals[i]
		if right.start > merged.start+merged.length {
			break
		}
		end := merged.start + merged.length
		if right.start+right.length > end {
			end = right.start + right.length
		}
		merged.length = end - merged.start
		idx.intervals = append(idx.intervals[:i], idx.intervals[i+1:]...)
	}

	idx.intervals = append(idx.intervals, interval{})
	copy(idx.intervals[i+1:], idx.intervals[i:])
	idx.intervals[i] = merged
}

// GetFree finds the smallest free interval that can satisfy count
// contiguous blocks (best fit), removes count from its front, and returns
// its starting block index. If the index is in the never-populated
// sentinel state, the whole 2^32 address space is the only candidate.
//
// Allocation failure (the 32-bit address space is exhausted) is the one
// failure mode that crosses the core boundary as a panic rather than a
// returned error, since a caller has no sensible recovery short of
// rebuilding the archive from scratch.
func (idx *Index) GetFree(count uint64) types.BlockIndex {
	if count == 0 {
		panic("freespace: GetFree(0)")
	}

	if len(idx.intervals) == 0 {
		// Sentinel: entire address space free.
		start := types.BlockIndex(0)
		if count < spaceSize {
			idx.intervals = []interval{{start: count, length: spaceSize - count}}
		} else {
			idx.intervals = []interval{{start: 0, length: 0}}
		}
		return start
	}

	best := -1
	for i, iv := range idx.intervals {
		if iv.length < count {
			continue
		}
		if best == -1 || iv.length < idx.intervals[best].length {
			best = i
		}
	}
	if best == -1 {
		panic(types.ErrAllocFail)
	}

	start := idx.intervals[best].start
	idx.intervals[best].start += count
	idx.intervals[best].length -= count
	if idx.intervals[best].length == 0 {
		idx.intervals = append(idx.intervals[:best], idx.intervals[best+1:]...)
		if len(idx.intervals) == 0 {
			// Insert the (0,0) dummy so this does not read back as the
			// "never populated" sentinel.
			idx.intervals = []interval{{start: 0, length: 0}}
		}
	}
	return types.BlockIndex(start)
}

// MarkUsed removes [start, start+length) from the free set, regardless of
// which free interval it falls within. Recovery uses this to rebuild the
// index from scratch: start from the all-free sentinel and mark every
// block belonging to a retained run or the terminator as used, leaving
// everything else free.
func (idx *Index) MarkUsed(start types.BlockIndex, length uint64) {
	if length == 0 {
		return
	}
	s := uint64(start)
	if s >= spaceSize {
		return
	}
	if s+length > spaceSize {
		length = spaceSize - s
	}
	end := s + length

	if len(idx.intervals) == 0 {
		idx.intervals = []interval{{start: 0, length: spaceSize}}
	} else if len(idx.intervals) == 1 && idx.intervals[0].length == 0 {
		return
	}

	out := idx.intervals[:0:0]
	for _, iv := range idx.intervals {
		ivEnd := iv.start + iv.length
		if ivEnd <= s || iv.start >= end {
			out = append(out, iv)
			continue
		}
		if iv.start < s {
			out = append(out, interval{start: iv.start, length: s - iv.start})
		}
		if ivEnd > end {
			out = append(out, interval{start: end, length: ivEnd - end})
		}
	}
	if len(out) == 0 {
		out = []interval{{start: 0, length: 0}}
	}
	idx.intervals = out
}

// Fingerprint hashes the current interval set with xxhash, in (start,
// length) order. Two indexes with the same fingerprint hold the same
// intervals, so it offers a cheap comparison of two interval sets without
// a full slice-equality check.
func (idx *Index) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [16]byte
	for _, iv := range idx.intervals {
		binary.BigEndian.PutUint64(buf[0:8], iv.start)
		binary.BigEndian.PutUint64(buf[8:16], iv.length)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Intervals returns a snapshot of the free intervals as (start, length)
// pairs, sorted, for tests and for the property check that the set stays
// disjoint and maximally coalesced.
func (idx *Index) Intervals() [][2]uint64 {
	out := make([][2]uint64, 0, len(idx.intervals))
	for _, iv := range idx.intervals {
		if iv.length == 0 {
			continue
		}
		out = append(out, [2]uint64{iv.start, iv.length})
	}
	return out
}

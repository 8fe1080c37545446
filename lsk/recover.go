package lsk

import (
	"math"

	"github.com/eldkv/sealbox/codec"
	"github.com/eldkv/sealbox/store/combinedhash"
	"github.com/eldkv/sealbox/store/freespace"
	"github.com/eldkv/sealbox/store/types"
)

// scannedBlock is one physical block's decoded header, or the record of a
// failed decrypt. The scan that produces these happens exactly once per
// New; every recovery pass below re-groups the same cached scan rather
// than re-touching the view, since nothing on disk changes until recovery
// has already picked a generation.
type scannedBlock struct {
	ok    bool
	order types.Order
	size  uint64
	data  []byte
}

// scanBlocks decrypts and verifies every block in the container once,
// accumulating ErrBitDecrypt for whichever ones fail.
func (m *Map[K, V]) scanBlocks() []scannedBlock {
	count := m.view.Count()
	blocks := make([]scannedBlock, count)
	for i := uint64(0); i < count; i++ {
		payload, err := m.view.ReadBlock(types.BlockIndex(i), m.containerID)
		if err != nil {
			m.errBits |= ErrBitDecrypt
			continue
		}
		order, size, data := decodeBlock(payload)
		blocks[i] = scannedBlock{ok: true, order: order, size: size, data: data}
	}
	return blocks
}

// recoveredRun is one candidate live record, head block plus decoded
// (key, value), found during a generation-building scan.
type recoveredRun[K comparable, V any] struct {
	key       K
	value     V
	order     types.Order
	headBlock types.BlockIndex
	count     uint32
}

// recoveredTerm is one candidate terminator block.
type recoveredTerm struct {
	order    types.Order
	block    types.BlockIndex
	snapshot [combinedhash.Size]byte
}

// noCeiling disables the order ceiling pass 2 uses to discard in-flight
// writes: pass 1 and pass 3 both want every validly-decrypted block
// considered, regardless of its order.
const noCeiling = uint64(math.MaxUint64)

// buildGeneration groups a cached scan into run and terminator candidates.
// Head blocks with order > ceiling are discarded (pass 2's rollback rule);
// pass 1 and pass 3 call this with noCeiling. maxOrder is the largest
// order observed on any valid block, head, continuation, or terminator
// alike, used to seed order_seq.
func (m *Map[K, V]) buildGeneration(blocks []scannedBlock, ceiling uint64) (runs []recoveredRun[K, V], term *recoveredTerm, maxOrder types.Order) {
	count := uint64(len(blocks))
	for i := uint64(0); i < count; {
		b := blocks[i]
		if !b.ok || b.order == 0 {
			// Unreadable, or an unassigned block from EBS growth: free space.
			i++
			continue
		}
		if uint64(b.order) > uint64(maxOrder) {
			maxOrder = b.order
		}

		switch {
		case b.size == 0:
			if term == nil || b.order > term.order {
				var snap [combinedhash.Size]byte
				copy(snap[:], b.data[:combinedhash.Size])
				term = &recoveredTerm{order: b.order, block: types.BlockIndex(i), snapshot: snap}
			}
			i++

		case b.size == continuationSize:
			// An orphan continuation: no head claimed it. Leave it free.
			i++

		default:
			if uint64(b.order) > ceiling {
				m.errBits |= ErrBitOrderBeyondFlush
				i++
				continue
			}
			runLen := uint64(runLength(int(b.size)))
			ok := i+runLen <= count
			if ok {
				for j := uint64(1); j < runLen; j++ {
					cb := blocks[i+j]
					if !cb.ok || cb.order != b.order || cb.size != continuationSize {
						ok = false
						m.errBits |= ErrBitRunSizeMismatch
						break
					}
				}
			} else {
				m.errBits |= ErrBitTruncatedRun
			}
			if !ok {
				i++
				continue
			}

			body := make([]byte, 0, b.size)
			for j := uint64(0); j < runLen; j++ {
				remain := b.size - uint64(len(body))
				cb := blocks[i+j]
				take := remain
				if take > uint64(len(cb.data)) {
					take = uint64(len(cb.data))
				}
				body = append(body, cb.data[:take]...)
			}

			key, value, err := m.decodeRecord(body)
			if err != nil {
				m.errBits |= ErrBitMalformedHeader
				i += runLen
				continue
			}
			runs = append(runs, recoveredRun[K, V]{
				key: key, value: value, order: b.order,
				headBlock: types.BlockIndex(i), count: uint32(runLen),
			})
			i += runLen
		}
	}
	return runs, term, maxOrder
}

// decodeRecord decodes a (key, value) document assembled from one run's
// bytes, via the same codec the writer path used to produce it.
func (m *Map[K, V]) decodeRecord(body []byte) (K, V, error) {
	var zk K
	var zv V
	r := codec.NewReader(body)
	if err := r.BeginDoc(); err != nil {
		return zk, zv, err
	}
	key, err := m.decodeKey(r)
	if err != nil {
		return zk, zv, err
	}
	value, err := m.decodeVal(r)
	if err != nil {
		return zk, zv, err
	}
	if err := r.EndDoc(); err != nil {
		return zk, zv, err
	}
	return key, value, nil
}

// dedupeRuns resolves the "keys that appear more than once" tie-break in
// §4.8: the run with the largest order wins per key; losers are simply
// never applied, so they are implicitly freed when the free-space index
// is rebuilt from the winners in applyGeneration.
func dedupeRuns[K comparable, V any](runs []recoveredRun[K, V]) map[K]recoveredRun[K, V] {
	best := make(map[K]recoveredRun[K, V], len(runs))
	for _, r := range runs {
		cur, ok := best[r.key]
		if !ok || r.order > cur.order {
			best[r.key] = r
		}
	}
	return best
}

// checkGeneration reports whether survivors' combined hash agrees with
// term's snapshot. A nil term only matches an empty survivor set (a
// genuinely fresh, never-written container).
func (m *Map[K, V]) checkGeneration(survivors map[K]recoveredRun[K, V], term *recoveredTerm) bool {
	if term == nil {
		return len(survivors) == 0
	}
	h := combinedhash.New(m.salt)
	for _, r := range survivors {
		h.CombineRun(r.order, r.headBlock)
	}
	return h.Check(term.snapshot)
}

// applyGeneration commits survivors as the map's live entries, rebuilds
// the free-space index from scratch (every block not claimed by a
// survivor's run or the chosen terminator is free), and recomputes the
// combined hash to match the committed set (invariant 4).
func (m *Map[K, V]) applyGeneration(survivors map[K]recoveredRun[K, V], term *recoveredTerm) {
	m.entries = make(map[K]*entry[K, V], len(survivors))
	m.free = freespace.New()
	m.hash.Reset()

	for k, r := range survivors {
		m.entries[k] = &entry[K, V]{
			key:   k,
			value: r.value,
			ctrl: control{
				order:     r.order,
				loadBlock: r.headBlock,
				loadCount: r.count,
				newBlock:  r.headBlock,
				newCount:  r.count,
			},
		}
		m.free.MarkUsed(r.headBlock, uint64(r.count))
		m.hash.CombineRun(r.order, r.headBlock)
	}

	if term != nil {
		m.free.MarkUsed(term.block, 1)
		m.lastTermBlock = term.block
	} else {
		m.lastTermBlock = types.NoBlock
	}
}

// recover implements §4.8's three-pass recovery, run once from New.
func (m *Map[K, V]) recover() error {
	m.entries = make(map[K]*entry[K, V])
	m.free = freespace.New()
	m.lastTermBlock = types.NoBlock
	m.flushOrder = flushOrderOptimistic

	blocks := m.scanBlocks()

	// Pass 1: optimistic, no order ceiling.
	runs1, term1, maxOrder := m.buildGeneration(blocks, noCeiling)
	survivors1 := dedupeRuns(runs1)
	m.orderSeq = maxOrder
	m.flushOrder = int64(maxOrder)

	if m.checkGeneration(survivors1, term1) {
		m.applyGeneration(survivors1, term1)
		return m.ensureTerminator()
	}

	// Pass 2: rollback to the best terminator candidate's committed order.
	if term1 != nil {
		runs2, term2, _ := m.buildGeneration(blocks, uint64(term1.order))
		survivors2 := dedupeRuns(runs2)
		if term2 != nil && m.checkGeneration(survivors2, term2) {
			m.flushOrder = int64(term2.order)
			m.applyGeneration(survivors2, term2)
			return m.ensureTerminator()
		}
	}

	// Pass 3: salvage. Accept pass 1's unrestricted result regardless of
	// terminator agreement; the container is best-effort from here.
	m.flushOrder = flushOrderSalvage
	m.errBits |= ErrBitSalvage
	m.applyGeneration(survivors1, term1)
	m.flushOrder = 0
	return m.ensureTerminator()
}

package lsk

import (
	"fmt"

	"github.com/eldkv/sealbox/codec"
	"github.com/eldkv/sealbox/store/types"
)

// persistOne implements §4.8 "Persist one entry": encode (key, value),
// reserve a block run sized to the encoding, assign the entry the next
// order, XOR its contribution into the combined hash, and write every
// block in the run. e.ctrl.order must be 0 (dirty) on entry; it is
// non-zero on return unless persistence failed, in which case the entry
// is left dirty and the failure is recorded in errBits.
func (m *Map[K, V]) persistOne(e *entry[K, V]) error {
	w := codec.NewWriter()
	w.BeginDoc()
	m.encodeKey(w, e.key)
	m.encodeVal(w, e.value)
	w.EndDoc()
	body := w.Bytes()

	// A run is only safe to overwrite in place if it is already a scratch
	// allocation from earlier in this same (not yet finalized) generation.
	// The very first persist since the last commit always has newBlock
	// aliasing loadBlock (or both zero, for a brand-new entry), and
	// overwriting that would corrupt the last durably committed copy
	// before a terminator confirms the new one -- so it always gets a
	// fresh run instead, preserving copy-on-write.
	count := uint64(runLength(len(body)))
	hasScratch := e.ctrl.newCount > 0 && e.ctrl.newBlock != e.ctrl.loadBlock
	if !hasScratch || uint64(e.ctrl.newCount) != count {
		if hasScratch {
			m.free.AddFree(e.ctrl.newBlock, uint64(e.ctrl.newCount))
		}
		e.ctrl.newBlock = m.free.GetFree(count)
		e.ctrl.newCount = uint32(count)
	}
	runBlock := e.ctrl.newBlock

	order := m.orderSeq + 1
	m.orderSeq = order
	m.hash.CombineRun(order, runBlock)

	for i := uint64(0); i < count; i++ {
		start := i * recordDataSize
		end := start + recordDataSize
		if end > uint64(len(body)) {
			end = uint64(len(body))
		}
		size := continuationSize
		if i == 0 {
			size = uint64(len(body))
		}
		payload := encodeBlock(order, size, body[start:end])
		if err := m.view.WriteBlock(runBlock+types.BlockIndex(i), payload, m.containerID); err != nil {
			// Undo this entry's reservation and contribution entirely; it
			// remains dirty and will be retried on the next persist pass.
			m.hash.CombineRun(order, runBlock)
			m.free.AddFree(runBlock, count)
			e.ctrl.newBlock = 0
			e.ctrl.newCount = 0
			e.ctrl.order = 0
			m.orderSeq--
			m.errBits |= ErrBitWrite
			log.Warnw("block write failed during persist", "block", runBlock+types.BlockIndex(i), "err", err)
			return fmt.Errorf("lsk: persist: %w", err)
		}
	}

	e.ctrl.order = order
	return nil
}

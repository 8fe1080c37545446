package lsk

import (
	"fmt"

	"github.com/eldkv/sealbox/store/combinedhash"
	"github.com/eldkv/sealbox/store/types"
)

// finalize implements §4.8 "Finalize (terminator + flush)": persist every
// still-dirty entry, durably flush the data blocks, emit a fresh
// terminator carrying the current combined-hash snapshot, durably flush
// again, then promote every entry's new_* run to load_*, freeing the
// previous generation's now-orphaned blocks. Step 5 (the terminator write
// durably landing) is the linearization point: a crash before it loses
// only the in-flight generation; recover() rolls back to the one before.
func (m *Map[K, V]) finalize() error {
	if err := m.persistDirty(); err != nil {
		return err
	}

	if err := m.view.Flush(); err != nil {
		m.errBits |= ErrBitWrite
		return fmt.Errorf("lsk: finalize: flush data: %w", err)
	}

	termBlock := m.free.GetFree(1)
	order := m.orderSeq + 1
	snapshot := m.hash.Dump()
	var data [combinedhash.Size]byte
	copy(data[:], snapshot[:])

	payload := encodeBlock(order, 0, data[:])
	if err := m.view.WriteBlock(termBlock, payload, m.containerID); err != nil {
		m.free.AddFree(termBlock, 1)
		m.errBits |= ErrBitTerminatorWrite
		log.Warnw("terminator write failed", "block", termBlock, "err", err)
		return fmt.Errorf("lsk: finalize: write terminator: %w", err)
	}
	m.orderSeq = order

	if err := m.view.Flush(); err != nil {
		m.errBits |= ErrBitTerminatorWrite
		return fmt.Errorf("lsk: finalize: flush terminator: %w", err)
	}

	if m.lastTermBlock != types.NoBlock {
		m.free.AddFree(m.lastTermBlock, 1)
	}
	m.lastTermBlock = termBlock
	m.flushOrder = int64(order)

	for _, e := range m.entries {
		if e.ctrl.loadCount > 0 && (e.ctrl.loadBlock != e.ctrl.newBlock || e.ctrl.loadCount != e.ctrl.newCount) {
			m.free.AddFree(e.ctrl.loadBlock, uint64(e.ctrl.loadCount))
		}
		e.ctrl.loadBlock = e.ctrl.newBlock
		e.ctrl.loadCount = e.ctrl.newCount
	}

	return nil
}

// ensureTerminator emits a fresh, empty-generation terminator if recovery
// found none: "first-ever open" per §4.8's tie-break notes, so
// last_term_block is always valid immediately after New.
func (m *Map[K, V]) ensureTerminator() error {
	if m.lastTermBlock != types.NoBlock {
		return nil
	}
	return m.finalize()
}
